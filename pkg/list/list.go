// Package list implements a doubly-linked list
package list

type Node[T any] struct {
	next, prev *Node[T]
	obj        *T
}

// Next returns the next item in the list, or nil if it reaches the end of the
// list.
func (n *Node[T]) Next() *Node[T] {
	return n.next
}

// Prev returns the previous item in the list, or nil at the front.
func (n *Node[T]) Prev() *Node[T] {
	return n.prev
}

// Element returns a pointer to the object at this position in the list.
func (n *Node[T]) Element() *T {
	return n.obj
}

// Set replaces the object stored at this position without moving it.
func (n *Node[T]) Set(e *T) {
	n.obj = e
}

// List implements a doubly linked-list. Member comparison is implemented based
// on pointer address, not deep content equality. Head, tail, and size are
// tracked internally, so all operations are constant time unless noted
// otherwise. The list is not thread-safe.
type List[T any] struct {
	head, tail *Node[T]
	size       int
}

// Len returns the length of the list. This function is constant time.
func (l *List[T]) Len() int {
	return l.size
}

// PushBack appends e to the list and returns the node holding it.
func (l *List[T]) PushBack(e *T) *Node[T] {
	n := &Node[T]{
		prev: l.tail,
		obj:  e,
	}
	if l.head == nil {
		l.head = n
	}
	if l.tail != nil {
		l.tail.next = n
	}
	l.tail = n
	l.size++
	return n
}

// PopFront removes the first item from the list and returns it.
func (l *List[T]) PopFront() *T {
	if l.head == nil {
		return nil
	}
	n := l.head
	l.unlink(n)
	return n.obj
}

// Remove deletes the first instance of e from the list, if present. It returns
// true if an object was removed. Objects are compared based on pointer address.
// This function is O(n).
func (l *List[T]) Remove(e *T) bool {
	for it := l.head; it != nil; it = it.next {
		if it.obj == e {
			l.unlink(it)
			return true
		}
	}
	return false
}

func (l *List[T]) unlink(n *Node[T]) {
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
	n.next = nil
	n.prev = nil
	l.size--
}

// FrontIter returns an iterator at the start of the list. The iterator will be
// nil when it reaches the end of a list, or if the list is empty.
func (l *List[T]) FrontIter() *Node[T] {
	return l.head
}

// BackIter returns an iterator at the end of the list. Walk it with Prev.
func (l *List[T]) BackIter() *Node[T] {
	return l.tail
}
