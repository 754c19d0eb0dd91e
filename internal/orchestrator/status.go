package orchestrator

import (
	"context"
	"sync"

	"github.com/local/printorder/internal/store"
)

// Job states.
const (
	StateQueued     = "queued"
	StateProcessing = "processing"
	StateSuccess    = "success"
	StateFailed     = "failed"
)

// StatusStore persists job status. *store.RedisStatus satisfies it.
type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
	Get(ctx context.Context, jobID string) (store.Status, bool, error)
}

// MemoryStatus keeps job status in process, for runs without Redis.
type MemoryStatus struct {
	mu   sync.RWMutex
	jobs map[string]store.Status
}

func NewMemoryStatus() *MemoryStatus {
	return &MemoryStatus{jobs: make(map[string]store.Status)}
}

// Set merges st into the stored entry the way the Redis store does: unset
// optional fields keep their previous value.
func (m *MemoryStatus) Set(_ context.Context, jobID string, st store.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.jobs[jobID]
	if ok {
		if st.OutputPath == "" {
			st.OutputPath = prev.OutputPath
		}
		if st.Start == nil {
			st.Start = prev.Start
		}
		if st.End == nil {
			st.End = prev.End
		}
		if st.Metadata == nil {
			st.Metadata = prev.Metadata
		}
	}
	m.jobs[jobID] = st
	return nil
}

func (m *MemoryStatus) Get(_ context.Context, jobID string) (store.Status, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.jobs[jobID]
	return st, ok, nil
}
