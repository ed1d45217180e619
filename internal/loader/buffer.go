package loader

import "sync"

const initialBufferCapacity = 16

// buffer is an unbounded FIFO shared by the producer (push) and the drain
// loop of the active Resume call (pop). Every push and the producer's
// completion leave a token on ready so a waiting drain loop wakes up.
type buffer[T any] struct {
	mu    sync.Mutex
	items []T // ring, len is a power of two
	head  int
	size  int
	ready chan struct{}
}

func newBuffer[T any]() *buffer[T] {
	return &buffer[T]{
		items: make([]T, initialBufferCapacity),
		ready: make(chan struct{}, 1),
	}
}

func (b *buffer[T]) push(item T) {
	b.mu.Lock()
	if b.size == len(b.items) {
		b.grow()
	}
	b.items[(b.head+b.size)&(len(b.items)-1)] = item
	b.size++
	b.mu.Unlock()

	b.signal()
}

func (b *buffer[T]) pop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	if b.size == 0 {
		return zero, false
	}
	item := b.items[b.head]
	b.items[b.head] = zero
	b.head = (b.head + 1) & (len(b.items) - 1)
	b.size--
	return item, true
}

func (b *buffer[T]) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// signal sets the wake token unless one is already pending.
func (b *buffer[T]) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// clear drops all items and any pending wake token.
func (b *buffer[T]) clear() {
	b.mu.Lock()
	clear(b.items)
	b.head = 0
	b.size = 0
	b.mu.Unlock()

	select {
	case <-b.ready:
	default:
	}
}

// grow doubles the ring. Must be called with mu held.
func (b *buffer[T]) grow() {
	items := make([]T, 2*len(b.items))
	n := copy(items, b.items[b.head:])
	copy(items[n:], b.items[:b.head])
	b.items = items
	b.head = 0
}
