package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// ResponseWriter writes one flushed line per response.
type ResponseWriter struct {
	w *bufio.Writer
}

// NewResponseWriter wraps w.
func NewResponseWriter(w io.Writer) *ResponseWriter {
	return &ResponseWriter{w: bufio.NewWriter(w)}
}

// WriteLine writes text followed by a newline and flushes. Line breaks
// inside text are replaced by spaces.
func (rw *ResponseWriter) WriteLine(text string) error {
	if _, err := rw.w.WriteString(lineBreaks.Replace(text)); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if err := rw.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if err := rw.w.Flush(); err != nil {
		return fmt.Errorf("flush response: %w", err)
	}
	return nil
}
