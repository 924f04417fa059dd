package syncer

import (
	"sync"
	"sync/atomic"
)

// runLock provides non-blocking lock semantics using atomic operations
type runLock struct {
	state atomic.Int32 // 0 = idle, 1 = running
}

// TryAcquire attempts to acquire the lock without blocking
func (l *runLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release must only be called by the caller that acquired the lock
func (l *runLock) Release() {
	l.state.Store(0)
}

// projectLocks hands out one runLock per project
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*runLock
}

func (p *projectLocks) get(projectID string) *runLock {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locks == nil {
		p.locks = make(map[string]*runLock)
	}
	l, ok := p.locks[projectID]
	if !ok {
		l = &runLock{}
		p.locks[projectID] = l
	}
	return l
}

// Running reports whether a run currently holds the project lock
func (s *Syncer) Running(projectID string) bool {
	return s.locks.get(projectID).state.Load() == 1
}
