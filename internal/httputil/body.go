// Package httputil provides helpers for reading backend HTTP payloads safely.
package httputil

import (
	"errors"
	"io"
)

// DefaultMaxResponseBodyBytes caps backend response bodies to 4MB.
const DefaultMaxResponseBodyBytes int64 = 4 << 20

// ErrResponseBodyTooLarge reports a body that exceeded the read limit.
var ErrResponseBodyTooLarge = errors.New("response body too large")

// ReadLimitedBody reads at most maxBytes from reader. When the body is longer
// it returns the first maxBytes together with ErrResponseBodyTooLarge. A
// non-positive maxBytes selects DefaultMaxResponseBodyBytes.
func ReadLimitedBody(reader io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBodyBytes
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		return body, err
	}
	if int64(len(body)) > maxBytes {
		return body[:maxBytes], ErrResponseBodyTooLarge
	}
	return body, nil
}
