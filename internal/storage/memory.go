package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory object store keyed by location, used by tests. Prefix semantics
// follow object stores: a prefix is a plain string prefix of the key.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ Backend = (*Memory)(nil)

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Put stores raw bytes at location; content does not have to be UTF-8.
func (m *Memory) Put(location string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[location] = append([]byte(nil), content...)
}

// Get returns the content stored at location.
func (m *Memory) Get(location string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[location]
	return string(b), ok
}

// Keys returns every stored location with the given prefix, sorted.
func (m *Memory) Keys(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *Memory) ListSources(ctx context.Context, root string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Like the object stores, root is a directory: "raw" must not list "raw2/".
	if root != "" && !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return m.Keys(root), nil
}

func (m *Memory) ReadText(ctx context.Context, location string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	b, ok := m.objects[location]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	return DecodeText(location, b)
}

func (m *Memory) ExistsUnder(ctx context.Context, prefix string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) WriteRecord(ctx context.Context, location, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Put(location, []byte(text))
	return nil
}
