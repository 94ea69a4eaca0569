package sensing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuan-noorazman/browser-steps/browser"
	"github.com/hairizuan-noorazman/browser-steps/browser/browsertest"
	"github.com/hairizuan-noorazman/browser-steps/logger"
)

func searchPage() *browsertest.Driver {
	drv := browsertest.NewDriver()
	drv.All = []*browsertest.Element{
		{Tag: "INPUT", Attrs: map[string]string{"id": "q", "placeholder": " Search "}, Box: browser.Rect{X: 1, Y: 2, Width: 3, Height: 4}},
		{Tag: "input", Attrs: map[string]string{"id": "hidden-search"}, Hidden: true},
		{Tag: "input", Attrs: map[string]string{"id": "gone", "placeholder": "Search"}, Stale: true},
		{Tag: "a", InnerText: "Search help", Path: "div:nth-of-type(1) > a:nth-of-type(2)"},
		{Tag: "button", InnerText: "Login"},
	}
	return drv
}

func TestEngineSenseRanksAndFilters(t *testing.T) {
	engine := NewEngine(logger.NewTestLogger())

	hints, err := engine.Sense(context.Background(), searchPage(), Query{Keywords: []string{"search"}})
	require.NoError(t, err)
	require.Len(t, hints, 2)

	assert.Equal(t, "#q", hints[0].Selector)
	assert.Equal(t, "input", hints[0].Tag)
	assert.InDelta(t, 1.8, hints[0].Score, 1e-9)
	assert.Equal(t, "Search", hints[0].Attributes["placeholder"])
	assert.Equal(t, "input", hints[0].Attributes["tag"])
	require.NotNil(t, hints[0].Rect)
	assert.Equal(t, float64(3), hints[0].Rect.Width)

	assert.Equal(t, "div:nth-of-type(1) > a:nth-of-type(2)", hints[1].Selector)
	assert.Equal(t, "Search help", hints[1].Attributes["text"])
	assert.InDelta(t, 1.0, hints[1].Score, 1e-9)
}

func TestEngineSenseLimitAndTextKeyword(t *testing.T) {
	engine := NewEngine(logger.NewTestLogger())

	hints, err := engine.Sense(context.Background(), searchPage(), Query{Text: "search", Limit: 1})
	require.NoError(t, err)
	require.Len(t, hints, 1)
	assert.Equal(t, "#q", hints[0].Selector)
}

func TestEngineSenseWithoutKeywordsKeepsPositiveScores(t *testing.T) {
	engine := NewEngine(logger.NewTestLogger())

	hints, err := engine.Sense(context.Background(), searchPage(), Query{})
	require.NoError(t, err)
	require.NotEmpty(t, hints)
	for _, h := range hints {
		assert.Greater(t, h.Score, 0.0, h.Selector)
	}
}

func TestEngineSenseEmptyPage(t *testing.T) {
	engine := NewEngine(logger.NewTestLogger())

	hints, err := engine.Sense(context.Background(), browsertest.NewDriver(), Query{Keywords: []string{"x"}})
	require.NoError(t, err)
	assert.NotNil(t, hints)
	assert.Empty(t, hints)
}
