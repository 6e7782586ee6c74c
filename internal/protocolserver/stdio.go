package protocolserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"go.uber.org/zap"
)

// ServeStdio reads newline-delimited Request objects from r and writes
// newline-delimited Response objects to w, one per line, until r is
// exhausted or ctx is cancelled. This is the primary transport front (spec
// §6 describes the client protocol as "a byte stream"; stdio is the
// reference framing, matching the same NDJSON convention used for
// subprocess tool servers).
func ServeStdio(ctx context.Context, d *Dispatcher, r io.Reader, w io.Writer, logger *zap.Logger) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			handleStdioLine(ctx, d, line, w, logger)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func handleStdioLine(ctx context.Context, d *Dispatcher, line []byte, w io.Writer, logger *zap.Logger) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		logger.Warn("discarding malformed stdio request line", zap.Error(err))
		return
	}

	resp := d.Handle(ctx, req)
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Error("failed to marshal response", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		logger.Error("failed to write stdio response", zap.Error(err))
	}
}
