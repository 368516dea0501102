package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mj1618/ax-mcp/internal/model"
	"github.com/mj1618/ax-mcp/internal/protocol"
)

// maxLine bounds one request line.
const maxLine = 4 << 20

// serveLines reads newline-delimited requests from r and writes one response
// line per request to w, in order. It returns nil at EOF.
func serveLines(ctx context.Context, d *Dispatcher, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	enc := json.NewEncoder(w)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := enc.Encode(d.Handle(ctx, line)); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	err := scanner.Err()
	if errors.Is(err, bufio.ErrTooLong) {
		tooLong := model.InvalidAction(fmt.Sprintf("request line exceeds %d bytes", maxLine))
		_ = enc.Encode(protocol.Failure(nil, tooLong))
	}
	return err
}
