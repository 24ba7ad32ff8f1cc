// Package ceiling provides state shared between tasks of different
// priority. Each resource declares the priorities of the tasks that use it;
// its ceiling is the highest of them. A task may only lock a resource it
// was declared for, so every access path to shared state is explicit.
package ceiling

import (
	"fmt"
	"sync"
)

// Priority of a task. Higher values preempt lower ones.
type Priority uint8

// Task priorities of a half.
const (
	Tick   Priority = 1
	LinkRx Priority = 2
	USB    Priority = 3
)

func (p Priority) String() string {
	switch p {
	case Tick:
		return "tick"
	case LinkRx:
		return "link-rx"
	case USB:
		return "usb"
	}
	return fmt.Sprintf("priority(%d)", uint8(p))
}

// Resource is a value guarded at its priority ceiling.
type Resource[T any] struct {
	mu      sync.Mutex
	ceiling Priority
	users   uint16
	v       T
}

// New returns a resource holding v, used by tasks of the given priorities.
func New[T any](v T, users ...Priority) *Resource[T] {
	r := &Resource[T]{v: v}
	for _, p := range users {
		r.users |= 1 << p
		if p > r.ceiling {
			r.ceiling = p
		}
	}
	return r
}

// Ceiling returns the highest priority among the resource's users.
func (r *Resource[T]) Ceiling() Priority { return r.ceiling }

// Lock runs fn with exclusive access to the value. Locking from a task that
// was not declared as a user is a programming error and panics.
func (r *Resource[T]) Lock(p Priority, fn func(v *T)) {
	if r.users&(1<<p) == 0 {
		panic(fmt.Sprintf("ceiling: %s task is not a declared user (ceiling %s)", p, r.ceiling))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.v)
}

// Load returns a copy of the value.
func (r *Resource[T]) Load(p Priority) T {
	var out T
	r.Lock(p, func(v *T) { out = *v })
	return out
}

// Store replaces the value.
func (r *Resource[T]) Store(p Priority, nv T) {
	r.Lock(p, func(v *T) { *v = nv })
}
