// Package waiter implements a a wait queue, where waiters can be registered to
// be notified of events. It is loosely based on the implementation in gVisor.
package waiter

import (
	"sync"

	"hop.computer/passage/pkg/list"
)

type Queue[T any] struct {
	l list.List[Entry[T]]
	m sync.RWMutex
}

type Entry[T any] struct {
	object   *T
	listener EventListener[T]
}

type EventListener[T any] interface {
	NotifyEvent(*T)
}

func (q *Queue[T]) EventRegister(e *Entry[T]) {
	q.m.Lock()
	defer q.m.Unlock()
	q.l.PushBack(e)
}

func (q *Queue[T]) EventUnregister(e *Entry[T]) bool {
	q.m.Lock()
	defer q.m.Unlock()
	return q.l.Remove(e)
}

// Len returns the number of registered waiters.
func (q *Queue[T]) Len() int {
	q.m.RLock()
	defer q.m.RUnlock()
	return q.l.Len()
}

// Notify calls every registered listener in registration order. Listeners must
// not register or unregister from inside NotifyEvent.
func (q *Queue[T]) Notify() {
	q.m.RLock()
	defer q.m.RUnlock()
	for e := q.l.FrontIter(); e != nil; e = e.Next() {
		entry := e.Element()
		entry.listener.NotifyEvent(entry.object)
	}
}

type coalescingNotifier[T any] chan *T

func (c coalescingNotifier[T]) NotifyEvent(t *T) {
	select {
	case c <- t:
	default:
	}
}

// NewCoalescingEntry delivers events on c without blocking. If a previous event
// has not been received yet, the new one is dropped. Use a buffered channel of
// size one to get "something changed" semantics.
func NewCoalescingEntry[T any](object *T, c chan *T) *Entry[T] {
	e := Entry[T]{
		object:   object,
		listener: coalescingNotifier[T](c),
	}
	return &e
}
