package jsonstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Reader decodes a stream written by Sink one item at a time.
type Reader[T any] struct {
	dec     *json.Decoder
	started bool
	done    bool
	full    bool
}

// NewReader creates a Reader over r.
func NewReader[T any](r io.Reader) *Reader[T] {
	return &Reader[T]{dec: json.NewDecoder(r)}
}

// Next returns the next item. It returns io.EOF once the array is closed.
func (r *Reader[T]) Next() (T, error) {
	var zero T
	if r.done {
		return zero, io.EOF
	}
	if !r.started {
		tok, err := r.dec.Token()
		if err != nil {
			return zero, fmt.Errorf("jsonstream: read array start: %w", err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return zero, fmt.Errorf("jsonstream: expected array, got %v", tok)
		}
		r.started = true
	}

	if !r.dec.More() {
		return zero, r.close()
	}

	var raw json.RawMessage
	if err := r.dec.Decode(&raw); err != nil {
		return zero, fmt.Errorf("jsonstream: read item: %w", err)
	}
	if bytes.Equal(raw, []byte("null")) {
		if r.dec.More() {
			return zero, fmt.Errorf("jsonstream: items after terminator")
		}
		r.full = true
		return zero, r.close()
	}

	var item T
	if err := json.Unmarshal(raw, &item); err != nil {
		return zero, fmt.Errorf("jsonstream: decode item: %w", err)
	}
	return item, nil
}

func (r *Reader[T]) close() error {
	if _, err := r.dec.Token(); err != nil {
		return fmt.Errorf("jsonstream: read array end: %w", err)
	}
	r.done = true
	return io.EOF
}

// Full reports whether the stream carried the terminator. It is only
// meaningful after Next has returned io.EOF.
func (r *Reader[T]) Full() bool {
	return r.full
}

// ReadAll decodes every item of the stream.
func ReadAll[T any](r io.Reader) (items []T, full bool, err error) {
	rd := NewReader[T](r)
	items = []T{}
	for {
		item, err := rd.Next()
		if err == io.EOF {
			return items, rd.Full(), nil
		}
		if err != nil {
			return items, false, err
		}
		items = append(items, item)
	}
}
