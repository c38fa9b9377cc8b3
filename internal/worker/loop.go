package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"kototype-whisper/internal/protocol"
)

// Serve reads requests from in until EOF and answers each on out. It
// returns nil on EOF and stops between requests once ctx is done.
func Serve(ctx context.Context, in io.Reader, out io.Writer, h *Handler, logger *zap.SugaredLogger) error {
	reader := bufio.NewReader(in)
	rw := protocol.NewResponseWriter(out)

	logger.Infow("Waiting for requests on stdin")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := reader.ReadString('\n')
		if len(line) > 0 {
			resp := h.Handle(ctx, line)
			if !resp.Skip {
				if err := rw.WriteLine(resp.Text); err != nil {
					return fmt.Errorf("respond: %w", err)
				}
			}
			h.Finish(ctx, resp)
		}

		if errors.Is(readErr, io.EOF) {
			logger.Infow("EOF reached, exiting")
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read request: %w", readErr)
		}
	}
}
