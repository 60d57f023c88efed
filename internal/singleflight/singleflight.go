package singleflight

import (
	"fmt"
	"sync"
)

// Group coalesces concurrent calls that share a key. It is typed so the token
// manager does not need to assert results back from interface{}.
type Group[T any] struct {
	mu sync.Mutex
	m  map[string]*call[T]
}

// call represents an in-flight function call.
type call[T any] struct {
	wg   sync.WaitGroup
	val  T
	err  error
	dups int
}

// New creates a new singleflight Group.
func New[T any]() *Group[T] {
	return &Group[T]{
		m: make(map[string]*call[T]),
	}
}

// Do executes and returns the results of the given function, making sure that
// only one execution is in-flight for a given key at a time. If a duplicate
// comes in, the duplicate caller waits for the original to complete and
// receives the same results. shared reports whether the result was handed to
// more than one caller.
//
// The key is released as soon as fn returns, so a caller arriving after
// completion starts a fresh execution.
func (g *Group[T]) Do(key string, fn func() (T, error)) (v T, err error, shared bool) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err, true
	}

	c := &call[T]{}
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	g.doCall(c, key, fn)
	return c.val, c.err, c.dups > 0
}

// Forget removes the key from the group, so the next call for it executes
// even if a previous call is still in progress. Waiters already attached to
// the old call still receive its result.
func (g *Group[T]) Forget(key string) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}

func (g *Group[T]) doCall(c *call[T], key string, fn func() (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.err = &PanicError{Value: r}
		}

		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		g.mu.Unlock()

		c.wg.Done()
	}()

	c.val, c.err = fn()
}

// PanicError carries a value recovered from a panicking fn. All callers that
// were waiting on that call receive it as their error.
type PanicError struct {
	Value any
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("singleflight: call panicked: %v", p.Value)
}
