// Package dispatch provides the enumerable table of host operations that
// sandboxed scripts may invoke. Every capability reachable from untrusted
// code is registered here explicitly; unknown keys fail closed.
package dispatch

import (
	"context"
	"sort"
	"sync"
)

// Func is a host-side async operation invoked on behalf of the guest.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Table maps "namespace.method" keys to host operations. It is built once
// before an invocation starts and treated as read-only while the guest runs,
// so concurrent lookups are safe.
type Table struct {
	mu      sync.RWMutex
	entries map[string]Func
}

// NewTable returns an empty dispatch table.
func NewTable() *Table {
	return &Table{entries: make(map[string]Func)}
}

// Register adds an operation under namespace.method, replacing any previous
// entry for the same key.
func (t *Table) Register(namespace, method string, fn Func) {
	t.mu.Lock()
	t.entries[namespace+"."+method] = fn
	t.mu.Unlock()
}

// Lookup resolves a "namespace.method" key.
func (t *Table) Lookup(key string) (Func, bool) {
	t.mu.RLock()
	fn, ok := t.entries[key]
	t.mu.RUnlock()
	return fn, ok
}

// Keys returns every registered key in sorted order.
func (t *Table) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.entries))
	for key := range t.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of registered operations.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Error is a structured operation failure. Operations return one when they
// can tell the script author what went wrong and how to fix it; plain errors
// are stringified instead.
type Error struct {
	Message string
	Code    string
	Fix     string
}

func (e *Error) Error() string {
	return e.Message
}
