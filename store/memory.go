package store

import "sync"

type MemoryStore struct {
	mutex      *sync.RWMutex
	namespaces map[string]map[string][]byte
}

func NewMemoryStore() MemoryStore {
	return MemoryStore{
		mutex:      &sync.RWMutex{},
		namespaces: make(map[string]map[string][]byte),
	}
}

func (m MemoryStore) Open(namespace string) (Handle, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.namespaces[namespace]; !ok {
		m.namespaces[namespace] = make(map[string][]byte)
	}
	return memoryHandle{store: m, namespace: namespace}, nil
}

func (m MemoryStore) Namespaces() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.namespaces))
	for name := range m.namespaces {
		names = append(names, name)
	}
	return names, nil
}

func (m MemoryStore) Delete(namespace string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.namespaces[namespace]
	delete(m.namespaces, namespace)
	return ok, nil
}

type memoryHandle struct {
	store     MemoryStore
	namespace string
}

func (h memoryHandle) Put(identity string, snapshot []byte) error {
	h.store.mutex.Lock()
	defer h.store.mutex.Unlock()
	entries, ok := h.store.namespaces[h.namespace]
	if !ok {
		// namespace was deleted after opening; a put recreates it
		entries = make(map[string][]byte)
		h.store.namespaces[h.namespace] = entries
	}
	copied := make([]byte, len(snapshot))
	copy(copied, snapshot)
	entries[identity] = copied
	return nil
}

func (h memoryHandle) Match(identity string) ([]byte, bool, error) {
	h.store.mutex.RLock()
	defer h.store.mutex.RUnlock()
	entries, ok := h.store.namespaces[h.namespace]
	if !ok {
		return nil, false, nil
	}
	snapshot, ok := entries[identity]
	if !ok {
		return nil, false, nil
	}
	return snapshot, true, nil
}

func (h memoryHandle) Name() string {
	return h.namespace
}
