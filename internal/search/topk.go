package search

import "container/heap"

// TopK keeps the k greatest elements pushed so far according to less.
// The root of the underlying min-heap is the weakest retained element.
// On ties the incumbent stays: a candidate replaces the root only when
// it is strictly greater.
type TopK[T any] struct {
	h        minHeap[T]
	capacity int
}

// NewTopK creates a selector holding at most capacity elements. less
// must define a strict weak ordering; less(a, b) means a ranks below b.
func NewTopK[T any](capacity int, less func(a, b T) bool) *TopK[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &TopK[T]{
		h:        minHeap[T]{less: less, items: make([]T, 0, min(capacity, 1024))},
		capacity: capacity,
	}
}

// Push offers x to the selector and reports whether it was retained.
func (t *TopK[T]) Push(x T) bool {
	if t.capacity == 0 {
		return false
	}
	if len(t.h.items) < t.capacity {
		heap.Push(&t.h, x)
		return true
	}
	if !t.h.less(t.h.items[0], x) {
		return false
	}
	t.h.items[0] = x
	heap.Fix(&t.h, 0)
	return true
}

// Peek returns the weakest retained element.
func (t *TopK[T]) Peek() (T, bool) {
	if len(t.h.items) == 0 {
		var zero T
		return zero, false
	}
	return t.h.items[0], true
}

// Len returns the number of retained elements.
func (t *TopK[T]) Len() int {
	return len(t.h.items)
}

// Full reports whether the selector is at capacity, after which a
// candidate must beat Peek to be retained.
func (t *TopK[T]) Full() bool {
	return len(t.h.items) >= t.capacity
}

// Sorted returns the retained elements best first. The selector is left
// unchanged.
func (t *TopK[T]) Sorted() []T {
	saved := append([]T(nil), t.h.items...)

	out := make([]T, 0, len(saved))
	for len(t.h.items) > 0 {
		out = append(out, heap.Pop(&t.h).(T))
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	t.h.items = saved
	return out
}

type minHeap[T any] struct {
	items []T
	less  func(a, b T) bool
}

func (h *minHeap[T]) Len() int           { return len(h.items) }
func (h *minHeap[T]) Less(i, j int) bool { return h.less(h.items[i], h.items[j]) }
func (h *minHeap[T]) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *minHeap[T]) Push(x any) {
	h.items = append(h.items, x.(T))
}

func (h *minHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	var zero T
	old[n-1] = zero
	h.items = old[:n-1]
	return x
}
