// Package calccache memoizes expensive computations by key.
//
// Caches can be switched off at runtime. Switching a cache clears what it
// holds and switches every child registered with it, so a whole tree of
// caches can be disabled from its root.
package calccache

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Toggle is anything that can be switched on and off with a cache.
type Toggle interface {
	SetEnabled(enabled bool)
	Enabled() bool
}

// Cache memoizes values of type T. The zero value is not usable; use New.
// It is safe for concurrent use.
type Cache[T any] struct {
	mu       sync.Mutex
	enabled  bool
	values   map[string]T
	children []Toggle
	group    singleflight.Group

	// generation changes whenever held values are dropped. A computation
	// started in an older generation is not stored.
	generation uint64
}

// New creates a cache. Children follow the cache's toggle.
func New[T any](enabled bool, children ...Toggle) *Cache[T] {
	return &Cache[T]{
		enabled:  enabled,
		values:   make(map[string]T),
		children: children,
	}
}

// Adopt registers more children. They are switched to the cache's current
// state.
func (c *Cache[T]) Adopt(children ...Toggle) {
	c.mu.Lock()
	c.children = append(c.children, children...)
	enabled := c.enabled
	c.mu.Unlock()

	for _, child := range children {
		if child.Enabled() != enabled {
			child.SetEnabled(enabled)
		}
	}
}

// Get returns the value held for key, computing it on a miss. Concurrent
// misses for the same key share one computation. Errors are returned to
// every waiter and never stored. A disabled cache always computes.
func (c *Cache[T]) Get(key string, compute func() (T, error)) (T, error) {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return compute()
	}
	if v, ok := c.values[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	gen := c.generation
	c.mu.Unlock()

	// Callers only share computations started in the same generation.
	flightKey := strconv.FormatUint(gen, 10) + "\x00" + key
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		c.mu.Lock()
		if v, ok := c.values[key]; ok && c.generation == gen {
			c.mu.Unlock()
			return v, nil
		}
		c.mu.Unlock()

		v, err := compute()
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		if c.enabled && c.generation == gen {
			c.values[key] = v
		}
		c.mu.Unlock()
		return v, nil
	})
	val, _ := v.(T)
	return val, err
}

// GetContext is Get for computations that block. The computation runs
// detached from the cancellation of ctx, so a caller giving up does not
// fail the other callers sharing it; ctx only bounds how long this caller
// waits. The value is still stored when the computation finishes.
func (c *Cache[T]) GetContext(ctx context.Context, key string, compute func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type result struct {
		val T
		err error
	}
	detached := context.WithoutCancel(ctx)
	ch := make(chan result, 1)
	go func() {
		v, err := c.Get(key, func() (T, error) {
			return compute(detached)
		})
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Len returns the number of held values.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// Clear drops every held value.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	c.values = make(map[string]T)
	c.generation++
	c.mu.Unlock()
}

// Enabled reports whether the cache holds values.
func (c *Cache[T]) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetEnabled switches the cache. A change of state clears held values and
// is passed on to every child; setting the current state does nothing.
func (c *Cache[T]) SetEnabled(enabled bool) {
	c.mu.Lock()
	if c.enabled == enabled {
		c.mu.Unlock()
		return
	}
	c.enabled = enabled
	c.values = make(map[string]T)
	c.generation++
	children := append([]Toggle(nil), c.children...)
	c.mu.Unlock()

	for _, child := range children {
		child.SetEnabled(enabled)
	}
}
