// Package jsonstream writes loader chunks as JSON arrays while they are
// being delivered, and reads them back.
//
// A stream is a JSON array of items. A stream whose session reached the Full
// state ends with a null element after the last item, so a reader can tell
// the final chunk apart from an intermediate one without out-of-band data.
package jsonstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/seantiz/partload/internal/loader"
)

// ErrNotStarted is returned by End when no destination is set.
var ErrNotStarted = errors.New("jsonstream: stream not started")

type flusher interface {
	Flush()
}

// Sink encodes delivered items onto the current destination. It is
// registered once per loader through Utilizer; each call swaps in its own
// destination with Begin and closes the array with End. Items delivered
// while no destination is set pass through untouched.
type Sink[T any] struct {
	mu  sync.Mutex
	w   io.Writer
	n   int
	err error
}

// Utilizer returns the pipeline step that writes each item to the sink.
func (s *Sink[T]) Utilizer() loader.Utilizer[T] {
	return loader.Tap(s.write)
}

// Begin sets w as the destination and opens the array.
func (s *Sink[T]) Begin(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.w, s.n, s.err = w, 0, nil
	return s.emit([]byte{'['})
}

func (s *Sink[T]) write(item T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil || s.err != nil {
		return
	}
	b, err := json.Marshal(item)
	if err != nil {
		s.err = fmt.Errorf("jsonstream: encode item: %w", err)
		return
	}
	if s.n > 0 {
		b = append([]byte{','}, b...)
	}
	if s.emit(b) == nil {
		s.n++
	}
}

// End closes the array, appending the null terminator when st is Full, and
// detaches the destination. It returns the first error seen since Begin.
func (s *Sink[T]) End(st loader.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return ErrNotStarted
	}
	var tail []byte
	if st == loader.Full {
		if s.n > 0 {
			tail = append(tail, ',')
		}
		tail = append(tail, "null"...)
	}
	tail = append(tail, "]\n"...)
	s.emit(tail)

	err := s.err
	s.w = nil
	return err
}

// Written returns the number of items written since Begin.
func (s *Sink[T]) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// emit writes b and flushes the destination when it supports flushing.
// Callers hold mu.
func (s *Sink[T]) emit(b []byte) error {
	if s.err != nil {
		return s.err
	}
	if _, err := s.w.Write(b); err != nil {
		s.err = fmt.Errorf("jsonstream: write: %w", err)
		return s.err
	}
	if f, ok := s.w.(flusher); ok {
		f.Flush()
	}
	return nil
}
