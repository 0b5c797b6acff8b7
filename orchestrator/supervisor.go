package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

var ErrSupervisorClosed = errors.New("supervisor is shut down")

type task struct {
	name    string
	started time.Time
}

// TaskInfo describes a running task.
type TaskInfo struct {
	Name    string
	Started time.Time
}

// Supervisor runs background tasks on a context it owns, so that a task
// outlives the request that started it but not the process.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	tasks  map[uint64]*task
	nextId uint64
	closed bool
	wg     sync.WaitGroup
}

func NewSupervisor() *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[uint64]*task),
	}
}

// Go starts fn in its own goroutine. A panic in fn is logged and turned
// into an error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSupervisorClosed
	}
	id := s.nextId
	s.nextId++
	s.tasks[id] = &task{name: name, started: time.Now()}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.tasks, id)
			s.mu.Unlock()
		}()

		if err := s.run(name, fn); err != nil {
			logger.WithField("task", name).Warnf("task ended with error: %v", err)
		}
	}()
	return nil
}

func (s *Supervisor) run(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", name, r)
		}
	}()
	return fn(s.ctx)
}

// Running lists the running tasks, oldest first.
func (s *Supervisor) Running() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		infos = append(infos, TaskInfo{Name: t.name, Started: t.started})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Started.Before(infos[j].Started) })
	return infos
}

// Shutdown stops accepting tasks and waits for the running ones. When ctx
// ends first, the tasks are cancelled and waited for once more.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		logger.Warnf("cancelling %d running tasks", len(s.Running()))
		s.cancel()
		<-done
		return ctx.Err()
	}
}
