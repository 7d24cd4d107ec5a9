// Package shutdown coordinates graceful shutdown across independently
// owned subsystems (connections, background loops) via registered
// callbacks run concurrently with a deadline.
package shutdown

import (
	"context"
	"sync"

	"github.com/gridbot/core/pkg/logger"
)

// Handler is a shutdown callback. wg is the same WaitGroup the Manager
// waits on, passed through so a handler can fan out its own sub-tasks
// under the same deadline.
type Handler func(ctx context.Context, wg *sync.WaitGroup)

// Manager runs every registered Handler concurrently when Shutdown is
// called, and returns once they've all finished or ctx expires.
type Manager struct {
	callbacks []Handler
	mu        sync.Mutex
}

func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown registers a callback to run on Shutdown.
func (m *Manager) OnShutdown(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, handler)
}

// Shutdown runs every registered callback concurrently and blocks until
// they've all returned or ctx's deadline passes, whichever is first.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	callbacks := m.callbacks
	m.mu.Unlock()

	if len(callbacks) == 0 {
		logger.Info("shutdown: no registered callbacks")
		return
	}

	logger.Infof("shutdown: running %d callbacks", len(callbacks))

	var wg sync.WaitGroup
	wg.Add(len(callbacks))
	for _, cb := range callbacks {
		go func(handler Handler) {
			defer wg.Done()
			handler(ctx, &wg)
		}(cb)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown: all callbacks completed")
	case <-ctx.Done():
		logger.Warnf("shutdown: timed out: %v", ctx.Err())
	}
}
