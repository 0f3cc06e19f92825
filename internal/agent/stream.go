package agent

import (
	"context"
	"io"
	"sync"
)

// SliceStream replays a fixed list of chunks. An optional terminal error is
// returned instead of io.EOF once the chunks run out.
type SliceStream struct {
	mu     sync.Mutex
	chunks []Chunk
	pos    int
	err    error
	closed bool
}

// NewSliceStream returns a stream over chunks.
func NewSliceStream(chunks ...Chunk) *SliceStream {
	return &SliceStream{chunks: chunks}
}

// FailAfter makes the stream return err after its chunks are consumed.
func (s *SliceStream) FailAfter(err error) *SliceStream {
	s.err = err
	return s
}

func (s *SliceStream) Next(ctx context.Context) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos < len(s.chunks) {
		chunk := s.chunks[s.pos]
		s.pos++
		return chunk, nil
	}
	if s.err != nil {
		return Chunk{}, s.err
	}
	return Chunk{}, io.EOF
}

func (s *SliceStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Consumed reports how many chunks were read.
func (s *SliceStream) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Closed reports whether Close was called.
func (s *SliceStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
