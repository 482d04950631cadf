package cache

// node is an element of a recency list. The front of the list is the most
// recently used element, the back is the eviction candidate.
type node[T any] struct {
	value T
	prev  *node[T]
	next  *node[T]
	list  *recencyList[T]
}

// recencyList is an intrusive doubly-linked list ordered by recency.
// It is not safe for concurrent use.
type recencyList[T any] struct {
	head *node[T]
	tail *node[T]
	len  int
}

func (l *recencyList[T]) Len() int {
	return l.len
}

// PushFront inserts value as the most recently used element.
func (l *recencyList[T]) PushFront(value T) *node[T] {
	n := &node[T]{value: value}
	l.linkFront(n)
	return n
}

// MoveToFront marks n as the most recently used element.
func (l *recencyList[T]) MoveToFront(n *node[T]) {
	if n == nil || n.list != l || n == l.head {
		return
	}
	l.unlink(n)
	l.linkFront(n)
}

// Remove unlinks n. Removing a node that is not in l is a no-op.
func (l *recencyList[T]) Remove(n *node[T]) {
	if n == nil || n.list != l {
		return
	}
	l.unlink(n)
}

// Back returns the least recently used element, or nil.
func (l *recencyList[T]) Back() *node[T] {
	return l.tail
}

// Front returns the most recently used element, or nil.
func (l *recencyList[T]) Front() *node[T] {
	return l.head
}

// Contains reports whether n is currently linked into l.
func (l *recencyList[T]) Contains(n *node[T]) bool {
	return n != nil && n.list == l
}

func (l *recencyList[T]) linkFront(n *node[T]) {
	n.list = l
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
	l.len++
}

func (l *recencyList[T]) unlink(n *node[T]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = nil
	n.next = nil
	n.list = nil
	l.len--
}

// Newer returns the next element towards the front, or nil.
func (n *node[T]) Newer() *node[T] {
	return n.prev
}

// Older returns the next element towards the back, or nil.
func (n *node[T]) Older() *node[T] {
	return n.next
}
