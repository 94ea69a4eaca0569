package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hairizuan-noorazman/browser-steps/assist"
	"github.com/hairizuan-noorazman/browser-steps/hintcache"
	"github.com/hairizuan-noorazman/browser-steps/protocol"
	"github.com/hairizuan-noorazman/browser-steps/sensing"
)

type hintsOptions struct {
	url      string
	keywords []string
	scope    string
	limit    int
	prompt   string
}

func newHintsCmd() *cobra.Command {
	var opts hintsOptions

	cmd := &cobra.Command{
		Use:   "hints",
		Short: "Find selector hints for a page",
		Long: `Opens the page in a short headless session on the worker and ranks its
interactive elements against the keywords. Falls back to the page's static
markup when the worker yields nothing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.url == "" && opts.prompt == "" {
				return errors.New("one of --url or --prompt is required")
			}

			log := newLogger()
			c, err := newClient(log)
			if err != nil {
				return err
			}
			defer c.Close(context.Background())

			var cache hintcache.Cache
			if cfg.GetBool("cache.enabled") {
				cache = hintcache.NewMemoryCache()
			}
			svc := assist.NewService(c.coordinator, sensing.NewStaticSensor(log), cache, log)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			res, err := senseHints(ctx, svc, opts)
			if err != nil {
				return err
			}

			if flagJSON {
				printJSON(res)
				return nil
			}
			printHints(res)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "", "Page to sense")
	cmd.Flags().StringSliceVarP(&opts.keywords, "keyword", "k", nil, "Keyword to rank elements by (repeatable)")
	cmd.Flags().StringVar(&opts.scope, "scope", "", "Element scope: forms, links, actions or a CSS selector group")
	cmd.Flags().IntVar(&opts.limit, "limit", sensing.DefaultLimit, "Maximum number of hints")
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "Free-text instruction to take the URL and keywords from")
	return cmd
}

func senseHints(ctx context.Context, svc *assist.Service, opts hintsOptions) (*assist.Result, error) {
	if opts.url == "" {
		return svc.SenseFromPrompt(ctx, opts.prompt)
	}
	keywords := opts.keywords
	if opts.prompt != "" {
		keywords = append(keywords, assist.ExtractKeywords(opts.prompt)...)
	}
	return svc.SenseScoped(ctx, opts.url, opts.scope, keywords, opts.limit)
}

func printHints(res *assist.Result) {
	printMessage(fmt.Sprintf("URL: %s (source: %s)", res.URL, res.Source))
	if len(res.Keywords) > 0 {
		printMessage("Keywords: " + strings.Join(res.Keywords, ", "))
	}
	if !res.HasHints {
		printMessage("No hints found.")
		return
	}

	rows := make([][]string, 0, len(res.Hints))
	for i, h := range res.Hints {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(h.Score, 'f', 2, 64),
			h.Tag,
			h.Selector,
			shorten(describeHint(h), 60),
		})
	}
	printTable([]string{"#", "SCORE", "TAG", "SELECTOR", "ATTRIBUTES"}, rows)
}

// describeHint renders a hint's attributes as key=value pairs, text first.
func describeHint(h protocol.SelectorHint) string {
	keys := make([]string, 0, len(h.Attributes))
	for k := range h.Attributes {
		if k != "text" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(h.Attributes))
	if text, ok := h.Attributes["text"]; ok {
		parts = append(parts, fmt.Sprintf("text=%q", text))
	}
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, h.Attributes[k]))
	}
	return strings.Join(parts, " ")
}
