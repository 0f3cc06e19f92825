package httpclient

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// BodyTooLargeError reports that a response body exceeded the read limit.
type BodyTooLargeError struct {
	Limit int64
}

func (e BodyTooLargeError) Error() string {
	return fmt.Sprintf("response body exceeded limit of %d bytes", e.Limit)
}

// IsBodyTooLarge reports whether err is, or wraps, a BodyTooLargeError.
func IsBodyTooLarge(err error) bool {
	var target BodyTooLargeError
	return errors.As(err, &target)
}

// ReadBody reads r fully, failing once more than limit bytes arrive.
// A limit <= 0 reads without bound.
func ReadBody(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(&io.LimitedReader{R: r, N: limit + 1})
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, BodyTooLargeError{Limit: limit}
	}
	return data, nil
}

// Snippet returns at most limit bytes of r, trimmed, for error messages.
// Read errors are ignored.
func Snippet(r io.Reader, limit int64) string {
	data, _ := io.ReadAll(io.LimitReader(r, limit))
	return strings.TrimSpace(string(data))
}
