package line

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/labio/labline/logger"
)

// TaskFunc represents one iteration of a task loop managed by the
// TaskManager. It should return true to continue running, or false to stop
// the goroutine.
type TaskFunc func() bool

// TaskManager manages the lifecycle of the background goroutines owned by a
// Connection (currently the listener).
//
// It uses a context.Context to signal termination: when Stop is called, all
// running task loops observe the cancellation and exit, and Wait blocks until
// they have done so. After Wait returns, the manager is reusable, so a
// Connection can be opened again after being closed.
type TaskManager struct {
	pctx   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.RWMutex // protect ctx and cancel
}

// NewTaskManager creates a new TaskManager with the given parent context and
// logger.
func NewTaskManager(ctx context.Context, l logger.Logger) *TaskManager {
	mgr := &TaskManager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// getContext safely returns the current context.
func (mgr *TaskManager) getContext() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start starts a new goroutine running taskFunc in a loop.
//
// The taskFunc should return true to continue running, or false to stop the
// goroutine. Panics in taskFunc are recovered and logged.
func (mgr *TaskManager) Start(name string, taskFunc TaskFunc) error {
	ctx := mgr.getContext()

	select {
	case <-ctx.Done():
		return fmt.Errorf("line: task manager already stopped, cannot start %s", name)
	default:
	}

	mgr.logger.Debug("start task", "name", name)
	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				mgr.logger.Error("panic in task loop", "name", name, "panic", r)
			}

			mgr.count.Add(-1)
			mgr.logger.Debug(fmt.Sprintf("%s task terminated", name), "task_count", mgr.TaskCount())
			mgr.wg.Done()
		}()

		for {
			ctx := mgr.getContext()
			select {
			case <-ctx.Done():
				return
			default:
				if !taskFunc() {
					return
				}
			}
		}
	}()

	return nil
}

// Stop signals all running goroutines to terminate.
func (mgr *TaskManager) Stop() {
	mgr.mu.Lock()
	if mgr.cancel != nil {
		mgr.cancel()
	}
	mgr.mu.Unlock()
}

// Wait waits for all goroutines to terminate, then re-arms the manager so
// new tasks can be started.
func (mgr *TaskManager) Wait() {
	mgr.wg.Wait()

	// recreate context with lock
	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// TaskCount returns the number of currently running goroutines.
func (mgr *TaskManager) TaskCount() int {
	return int(mgr.count.Load())
}
