package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/protocol"
)

// ServeStdio is the worker side of the JSON-lines channel. It reads one
// request per line from in and writes exactly one response line to out for
// each, until in reaches EOF or ctx is cancelled. Blank lines are ignored.
func ServeStdio(ctx context.Context, in io.Reader, out io.Writer, h Handler, log logger.Logger) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	writer := bufio.NewWriter(out)

	log.Info(ctx, "Worker ready", nil)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var resp protocol.Response
		var req protocol.Request
		if err := json.Unmarshal(line, &req); err != nil {
			log.Warn(ctx, "Rejected undecodable request", map[string]interface{}{"error": err.Error()})
			resp = protocol.ErrorResponse("Invalid request: "+err.Error(), nil)
		} else {
			resp = h.Handle(ctx, req)
		}

		payload, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
		if _, err := writer.Write(payload); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
		if err := writer.Flush(); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}
	log.Info(ctx, "Input closed, worker stopping", nil)
	return nil
}
