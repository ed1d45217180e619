package loader

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// producer pulls items from a Source on its own goroutine and pushes them
// into the buffer. err is written before done is closed and must only be
// read after done is closed.
type producer[T any] struct {
	done     chan struct{}
	err      error
	canceled bool
}

func startProducer[T any](ctx context.Context, src Source[T], buf *buffer[T]) *producer[T] {
	p := &producer[T]{done: make(chan struct{})}
	go p.run(ctx, src, buf)
	return p
}

func (p *producer[T]) run(ctx context.Context, src Source[T], buf *buffer[T]) {
	defer func() {
		close(p.done)
		buf.signal()
	}()

	recovered := panics.Try(func() {
		if ctx.Err() != nil {
			p.canceled = true
			return
		}
		for item, err := range src(ctx) {
			if err != nil {
				if ctx.Err() != nil {
					p.canceled = true
					return
				}
				p.err = err
				return
			}
			if ctx.Err() != nil {
				p.canceled = true
				return
			}
			buf.push(item)
		}
	})
	if recovered != nil {
		p.err = recovered.AsError()
	}
}

func (p *producer[T]) finished() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *producer[T]) wait() {
	<-p.done
}

// fault returns the source error, if any. Only valid once finished.
func (p *producer[T]) fault() error {
	if p.err == nil {
		return nil
	}
	return &SourceError{Err: p.err}
}
