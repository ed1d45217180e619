package loader

// Utilizer is a per-item step of the processing pipeline. Utilizers run in
// registration order on the goroutine calling Resume, each receiving the
// item returned by the previous one.
type Utilizer[T any] func(item T) T

// Tap adapts an observer that does not transform the item into a Utilizer.
func Tap[T any](fn func(item T)) Utilizer[T] {
	return func(item T) T {
		fn(item)
		return item
	}
}
