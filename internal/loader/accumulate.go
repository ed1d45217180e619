package loader

import (
	"slices"
	"sync"
)

// collector is the storage behind the Chunk and Result views. It is written
// by the drain loop and read by the caller between calls.
type collector[T any] struct {
	mu    sync.Mutex
	items []T
}

func (c *collector[T]) add(item T) {
	c.mu.Lock()
	c.items = append(c.items, item)
	c.mu.Unlock()
}

func (c *collector[T]) clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

func (c *collector[T]) snapshot() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		return []T{}
	}
	return slices.Clone(c.items)
}

func attachChunk[T any](l *Loader[T]) *collector[T] {
	c := &collector[T]{}
	l.attach(c.add, c.clear, c.clear)
	return c
}

func attachResult[T any](l *Loader[T]) *collector[T] {
	c := &collector[T]{}
	l.attach(c.add, nil, c.clear)
	return c
}

func chunkView[T any](l *Loader[T], c *collector[T]) ([]T, error) {
	if err := expectState("chunk", l.State(), Partial, Full); err != nil {
		return nil, err
	}
	return c.snapshot(), nil
}

func resultView[T any](l *Loader[T], c *collector[T]) ([]T, error) {
	if err := expectState("result", l.State(), Full); err != nil {
		return nil, err
	}
	return c.snapshot(), nil
}

// ChunkLoader collects the items delivered by the most recent Resume.
type ChunkLoader[T any] struct {
	*Loader[T]
	chunk *collector[T]
}

// NewChunkLoader creates a Loader with a chunk accumulator attached.
func NewChunkLoader[T any](opts ...Option) *ChunkLoader[T] {
	l := NewLoader[T](opts...)
	return &ChunkLoader[T]{Loader: l, chunk: attachChunk(l)}
}

// Chunk returns the items delivered by the last Resume. It is readable in
// the Partial and Full states only.
func (c *ChunkLoader[T]) Chunk() ([]T, error) {
	return chunkView(c.Loader, c.chunk)
}

// ResultLoader collects every item delivered during the session.
type ResultLoader[T any] struct {
	*Loader[T]
	result *collector[T]
}

// NewResultLoader creates a Loader with a result accumulator attached.
func NewResultLoader[T any](opts ...Option) *ResultLoader[T] {
	l := NewLoader[T](opts...)
	return &ResultLoader[T]{Loader: l, result: attachResult(l)}
}

// Result returns every item delivered since the last Reset. It is readable
// in the Full state only, so a partial result is never mistaken for the
// final one.
func (r *ResultLoader[T]) Result() ([]T, error) {
	return resultView(r.Loader, r.result)
}

// ChunkResultLoader combines the chunk and result accumulators.
type ChunkResultLoader[T any] struct {
	*Loader[T]
	chunk  *collector[T]
	result *collector[T]
}

// NewChunkResultLoader creates a Loader with both accumulators attached.
func NewChunkResultLoader[T any](opts ...Option) *ChunkResultLoader[T] {
	l := NewLoader[T](opts...)
	return &ChunkResultLoader[T]{
		Loader: l,
		chunk:  attachChunk(l),
		result: attachResult(l),
	}
}

// Chunk returns the items delivered by the last Resume.
func (c *ChunkResultLoader[T]) Chunk() ([]T, error) {
	return chunkView(c.Loader, c.chunk)
}

// Result returns every item delivered since the last Reset.
func (c *ChunkResultLoader[T]) Result() ([]T, error) {
	return resultView(c.Loader, c.result)
}
