package loader

import (
	"context"
	"iter"
)

// Source is a lazy asynchronous sequence of items. The returned iterator is
// consumed by exactly one producer goroutine; ctx is canceled when the
// loader is canceled or reset, and implementations that block between items
// should honor it. A non-nil error ends the sequence as a fault.
type Source[T any] func(ctx context.Context) iter.Seq2[T, error]

// FromSlice returns a Source yielding the given items in order.
func FromSlice[T any](items []T) Source[T] {
	return func(ctx context.Context) iter.Seq2[T, error] {
		return func(yield func(T, error) bool) {
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// FromSeq adapts an infallible iterator into a Source.
func FromSeq[T any](seq iter.Seq[T]) Source[T] {
	return func(ctx context.Context) iter.Seq2[T, error] {
		return func(yield func(T, error) bool) {
			for item := range seq {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}
