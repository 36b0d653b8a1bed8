package engine

import (
	"sync"

	"go.uber.org/zap"
)

// TaskGroup holds work that must survive past the tick's return: cert
// re-checks and notification sends. The host is contractually required to
// Wait() before tearing the process down; the core never assumes a task ran
// before the tick returned.
type TaskGroup struct {
	Logger *zap.Logger
	wg     sync.WaitGroup
}

func NewTaskGroup(logger *zap.Logger) *TaskGroup {
	return &TaskGroup{Logger: logger}
}

func (g *TaskGroup) Go(name string, fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.Logger.Error("task_panic",
					zap.String("task", name),
					zap.Any("panic", r),
				)
			}
		}()
		fn()
	}()
}

// Wait blocks until every registered task has finished.
func (g *TaskGroup) Wait() { g.wg.Wait() }
