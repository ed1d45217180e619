// Package catgen generates a slow, numbered sequence of cats for
// exercising partial loading.
package catgen

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/seantiz/partload/internal/loader"
)

// Cat is a single generated item.
type Cat struct {
	Name string `json:"name"`
}

// Generate returns a source yielding "Cat #1" through "Cat #count", each
// after waiting delay. The wait ends early when ctx is done.
func Generate(count int, delay time.Duration) loader.Source[Cat] {
	return func(ctx context.Context) iter.Seq2[Cat, error] {
		return func(yield func(Cat, error) bool) {
			for i := 1; i <= count; i++ {
				if err := sleep(ctx, delay); err != nil {
					yield(Cat{}, err)
					return
				}
				if !yield(Cat{Name: fmt.Sprintf("Cat #%d", i)}, nil) {
					return
				}
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
