package vw

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// readChunkSize matches the receive size vw's own active interactor uses.
const readChunkSize = 256

// lineBuffer frames a byte stream into newline-terminated lines. Bytes past
// the first newline stay buffered for the next call, so one underlying read
// may serve several lines and one line may span several reads.
type lineBuffer struct {
	r   io.Reader
	buf []byte
	eof bool
}

func newLineBuffer(r io.Reader) *lineBuffer {
	return &lineBuffer{r: r}
}

// readLine returns the next line without its "\n" (and without a trailing
// "\r"). When the stream ends first, it returns whatever was buffered along
// with io.EOF.
func (b *lineBuffer) readLine() (string, error) {
	chunk := make([]byte, readChunkSize)
	for {
		if i := bytes.IndexByte(b.buf, '\n'); i >= 0 {
			line := b.buf[:i]
			b.buf = b.buf[i+1:]
			return string(bytes.TrimSuffix(line, []byte{'\r'})), nil
		}
		if b.eof {
			rest := string(b.buf)
			b.buf = nil
			return rest, io.EOF
		}

		n, err := b.r.Read(chunk)
		b.buf = append(b.buf, chunk[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				b.eof = true
				continue
			}
			return "", fmt.Errorf("failed to read from engine: %w", err)
		}
	}
}

// buffered reports how many bytes are waiting past the last returned line.
func (b *lineBuffer) buffered() int {
	return len(b.buf)
}

// writeLine appends a newline and writes the result in a single call.
func writeLine(w io.Writer, line string) error {
	data := make([]byte, 0, len(line)+1)
	data = append(data, line...)
	data = append(data, '\n')

	n, err := w.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write to engine: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("failed to write to engine: %w", io.ErrShortWrite)
	}
	return nil
}
