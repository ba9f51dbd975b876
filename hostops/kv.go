package hostops

import (
	"context"
	"sync"

	"github.com/scriptbox-dev/scriptbox/dispatch"
)

const (
	DefaultKVMaxEntries = 1000
	DefaultKVMaxKeySize = 256
)

// KVStore is an in-memory key-value capability shared by every invocation
// that gets its namespace registered.
type KVStore struct {
	mu         sync.RWMutex
	data       map[string]any
	maxEntries int
	maxKeySize int
}

// KVOption configures a KVStore.
type KVOption func(*KVStore)

// WithMaxEntries caps the number of stored keys.
func WithMaxEntries(n int) KVOption {
	return func(s *KVStore) { s.maxEntries = n }
}

// WithMaxKeySize caps key length in bytes.
func WithMaxKeySize(n int) KVOption {
	return func(s *KVStore) { s.maxKeySize = n }
}

// NewKVStore returns an empty store with default limits.
func NewKVStore(opts ...KVOption) *KVStore {
	s := &KVStore{
		data:       make(map[string]any),
		maxEntries: DefaultKVMaxEntries,
		maxKeySize: DefaultKVMaxKeySize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register installs kv.get, kv.set, kv.delete and kv.keys.
func (s *KVStore) Register(table *dispatch.Table) {
	table.Register("kv", "get", s.Get)
	table.Register("kv", "set", s.Set)
	table.Register("kv", "delete", s.Delete)
	table.Register("kv", "keys", s.Keys)
}

func (s *KVStore) key(args map[string]any) (string, error) {
	key, ok := args["key"].(string)
	if !ok || key == "" {
		return "", &dispatch.Error{
			Message: "key required",
			Code:    "INVALID_INPUT",
			Fix:     "pass {key: string}",
		}
	}
	if len(key) > s.maxKeySize {
		return "", &dispatch.Error{
			Message: "key too long",
			Code:    "INVALID_INPUT",
		}
	}
	return key, nil
}

// Get returns the stored value for a key, or null.
func (s *KVStore) Get(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	val, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		return nil, nil
	}
	return val, nil
}

// Set stores a JSON value under a key.
func (s *KVStore) Set(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}
	val, ok := args["value"]
	if !ok {
		return nil, &dispatch.Error{
			Message: "value required",
			Code:    "INVALID_INPUT",
			Fix:     "pass {key: string, value: any}",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; !exists && len(s.data) >= s.maxEntries {
		return nil, &dispatch.Error{
			Message: "store full",
			Fix:     "delete unused keys first",
		}
	}
	s.data[key] = val
	return "ok", nil
}

// Delete removes a key.
func (s *KVStore) Delete(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()

	return "ok", nil
}

// Keys lists all stored keys.
func (s *KVStore) Keys(ctx context.Context, args map[string]any) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}
