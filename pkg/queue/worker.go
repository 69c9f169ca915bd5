package queue

import (
	"context"
	"log/slog"
	"sync"
)

// taskHandler is the subset of Manager a worker needs: run one task and
// report its transitions. Narrowed to an interface so worker tests can stub
// the manager out.
type taskHandler interface {
	process(ctx context.Context, task Task)
}

// Worker is a single pool member consuming test tasks from the shared queue.
type Worker struct {
	id       string
	tasks    <-chan Task
	handler  taskHandler
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu             sync.RWMutex
	status         WorkerStatus
	currentTest    string
	tasksProcessed int
}

// NewWorker creates a worker reading from the shared task channel.
func NewWorker(id string, tasks <-chan Task, handler taskHandler) *Worker {
	return &Worker{
		id:      id,
		tasks:   tasks,
		handler: handler,
		stopCh:  make(chan struct{}),
		status:  WorkerStatusIdle,
	}
}

// Start begins the worker loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish its current
// task. Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health snapshot.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:             w.id,
		Status:         w.status,
		CurrentTest:    w.currentTest,
		TasksProcessed: w.tasksProcessed,
	}
}

// run is the main worker loop. Once a task is dequeued it runs to
// completion: stop only interrupts the idle wait.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		case task := <-w.tasks:
			w.setStatus(WorkerStatusWorking, task.Test.QualifiedName)
			w.handler.process(ctx, task)
			w.mu.Lock()
			w.tasksProcessed++
			w.mu.Unlock()
			w.setStatus(WorkerStatusIdle, "")
		}
	}
}

func (w *Worker) setStatus(status WorkerStatus, test string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentTest = test
}
