package mem

import (
	"context"
	"fmt"
	"sync"

	"github.com/warriorguo/taskgraph/store"
	"github.com/warriorguo/taskgraph/utils"
)

var (
	_ store.Store = &memStore{}
)

func NewMemStore() store.Store {
	return &memStore{
		buckets: make(map[string]map[string][]byte),
		// setup no error as default
		mockErrHandler: defaultNoErr,
	}
}

// NewMemStoreWithErrHandler lets tests inject store failures.
func NewMemStoreWithErrHandler(errHandler func() error) store.Store {
	return &memStore{
		buckets:        make(map[string]map[string][]byte),
		mockErrHandler: errHandler,
	}
}

func defaultNoErr() error {
	return nil
}

/**
 * memStore keeps one bucket per prefix, purely in memory. It exists for
 * debugging and testing; NEVER use it in production.
 */
type memStore struct {
	mu sync.Mutex

	mockErrHandler func() error

	buckets map[string]map[string][]byte
}

func (m *memStore) String() string {
	s := "\n----------\n"
	for prefix, bucket := range m.buckets {
		for key, value := range bucket {
			s += fmt.Sprintf("%s|%s: %s\n", prefix, key, string(value))
		}
	}
	s += "----------\n"
	return s
}

func (m *memStore) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.buckets[prefix][key], m.mockErrHandler()
}

func (m *memStore) Set(ctx context.Context, prefix, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, exists := m.buckets[prefix]
	if !exists {
		bucket = make(map[string][]byte)
		m.buckets[prefix] = bucket
	}
	bucket[key] = value
	return m.mockErrHandler()
}

func (m *memStore) Remove(ctx context.Context, prefix, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.buckets[prefix], key)
	return m.mockErrHandler()
}

func (m *memStore) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	m.mu.Lock()
	keys := utils.SortedKeys(m.buckets[prefix])
	m.mu.Unlock()

	for _, key := range keys {
		if !iterator(key) {
			break
		}
	}
	return m.mockErrHandler()
}
