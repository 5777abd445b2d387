package asset

import (
	"context"
	"sync"

	"github.com/any-hub/asset-hub/internal/cache"
)

// memoryTier 是内存版缓存层，记录调用次数并支持注入失败。
type memoryTier struct {
	mu      sync.Mutex
	ready   bool
	entries map[string]string

	openCalls  int
	writeCalls int
	readErr    error
	openErr    error
	createErr  error
	writeErr   error
}

func newMemoryTier(ready bool) *memoryTier {
	return &memoryTier{ready: ready, entries: map[string]string{}}
}

func (m *memoryTier) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *memoryTier) Open(_ context.Context, key string) (*cache.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openCalls++
	if !m.ready {
		return nil, cache.ErrUnprovisioned
	}
	if m.openErr != nil {
		return nil, m.openErr
	}
	if _, ok := m.entries[key]; !ok {
		return nil, cache.ErrNotFound
	}
	return &cache.Handle{Key: key}, nil
}

func (m *memoryTier) OpenOrCreate(_ context.Context, key string) (*cache.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return nil, cache.ErrUnprovisioned
	}
	if m.createErr != nil {
		return nil, m.createErr
	}
	if m.openErr != nil {
		return nil, m.openErr
	}
	return &cache.Handle{Key: key}, nil
}

func (m *memoryTier) Read(_ context.Context, h *cache.Handle) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return "", m.readErr
	}
	return m.entries[h.Key], nil
}

func (m *memoryTier) Write(_ context.Context, h *cache.Handle, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.writeErr != nil {
		return m.writeErr
	}
	m.entries[h.Key] = content
	return nil
}

func (m *memoryTier) seed(key, content string) {
	m.mu.Lock()
	m.entries[key] = content
	m.mu.Unlock()
}

// stubFetcher 返回预置内容并统计调用次数。
type stubFetcher struct {
	mu          sync.Mutex
	local       map[string]string
	remote      map[string]string
	localErr    error
	remoteErr   error
	localCalls  int
	remoteCalls int
	remoteGate  chan struct{}
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{local: map[string]string{}, remote: map[string]string{}}
}

func (s *stubFetcher) FetchLocal(_ context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localCalls++
	if s.localErr != nil {
		return "", s.localErr
	}
	return s.local[path], nil
}

func (s *stubFetcher) FetchRemote(_ context.Context, path string) (string, error) {
	s.mu.Lock()
	s.remoteCalls++
	gate := s.remoteGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remoteErr != nil {
		return "", s.remoteErr
	}
	return s.remote[path], nil
}

func (s *stubFetcher) counts() (local, remote int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localCalls, s.remoteCalls
}
