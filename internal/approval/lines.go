package approval

import (
	"bufio"
	"context"
	"io"
	"sync"
)

// LineReader hands out input lines read by a single background goroutine.
// A caller that stops waiting leaves the pending line for the next caller,
// so prompts with a deadline can share one input with a REPL.
type LineReader struct {
	in    *bufio.Reader
	once  sync.Once
	lines chan string
	err   error
}

// NewLineReader wraps in. Reading starts on the first ReadLine.
func NewLineReader(in io.Reader) *LineReader {
	return &LineReader{in: bufio.NewReader(in), lines: make(chan string)}
}

// ReadLine returns the next line including its newline. A final line without
// a newline is returned with a nil error; after that the read error (usually
// io.EOF) is returned on every call.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.once.Do(func() { go r.run() })

	select {
	case line, ok := <-r.lines:
		if !ok {
			return "", r.err
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *LineReader) run() {
	for {
		line, err := r.in.ReadString('\n')
		if line != "" {
			r.lines <- line
		}
		if err != nil {
			// The close publishes r.err to readers.
			r.err = err
			close(r.lines)
			return
		}
	}
}
