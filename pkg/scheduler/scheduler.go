package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/logger"
)

// Func is the work of a periodic task.
type Func func(ctx context.Context) error

type task struct {
	name       string
	schedule   Schedule
	fn         Func
	timeout    time.Duration
	runOnStart bool

	// guarded by Scheduler.mu
	nextRun time.Time
	running bool
}

// Scheduler runs registered tasks on their schedules.
type Scheduler struct {
	mu       sync.Mutex
	tasks    map[string]*task
	started  bool
	interval time.Duration
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// New creates a scheduler with no tasks.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:    make(map[string]*task),
		interval: 30 * time.Second,
		location: time.UTC,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("scheduler"))
	return s
}

// AddTask registers a periodic task. Tasks may be added while the scheduler
// is running.
func (s *Scheduler) AddTask(name string, schedule Schedule, fn Func, opts ...TaskOption) error {
	if schedule == nil {
		return ErrNoScheduleSpecified
	}
	if fn == nil {
		return ErrNilTask
	}

	t := &task{name: name, schedule: schedule, fn: fn}
	for _, opt := range opts {
		opt(t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return ErrTaskAlreadyRegistered
	}
	if s.started {
		t.nextRun = t.firstRun(s.clock())
	}
	s.tasks[name] = t

	s.logger.Info("registered periodic task",
		slog.String("task_name", name),
		slog.String("schedule", schedule.String()))

	return nil
}

// RemoveTask unregisters a task. A run in progress is not interrupted.
func (s *Scheduler) RemoveTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, name)
	s.logger.Info("removed periodic task", slog.String("task_name", name))
}

// ListTasks returns the registered task names, sorted.
func (s *Scheduler) ListTasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Start runs the scheduler until ctx is cancelled. It then waits for the
// running tasks, whose contexts are cancelled too, and returns ctx.Err().
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return ErrSchedulerNotConfigured
	}
	s.started = true
	now := s.clock()
	for _, t := range s.tasks {
		t.nextRun = t.firstRun(now)
	}
	s.mu.Unlock()

	defer func() {
		s.wg.Wait()
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runDue(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

func (s *Scheduler) clock() time.Time {
	return s.now().In(s.location)
}

func (t *task) firstRun(now time.Time) time.Time {
	if t.runOnStart {
		return now
	}
	return t.schedule.Next(now)
}

// runDue starts every task whose next run has come. A task still running from
// an earlier tick skips this one.
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.clock()

	s.mu.Lock()
	var due []*task
	for _, t := range s.tasks {
		if t.nextRun.After(now) {
			continue
		}
		t.nextRun = t.schedule.Next(now)
		if t.running {
			s.logger.Warn("periodic task still running, skipping run",
				slog.String("task_name", t.name),
				slog.Time("next_run", t.nextRun))
			continue
		}
		t.running = true
		due = append(due, t)
	}
	s.mu.Unlock()

	for _, t := range due {
		s.wg.Add(1)
		go s.run(ctx, t)
	}
}

func (s *Scheduler) run(ctx context.Context, t *task) {
	defer s.wg.Done()
	defer s.release(t)
	_ = s.execute(ctx, t)
}

// RunNow runs the named task once in the caller's goroutine, outside its
// schedule. It fails with ErrTaskRunning when a run is already in progress.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	if !ok {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	if t.running {
		s.mu.Unlock()
		return ErrTaskRunning
	}
	t.running = true
	s.mu.Unlock()

	defer s.release(t)
	return s.execute(ctx, t)
}

func (s *Scheduler) release(t *task) {
	s.mu.Lock()
	t.running = false
	s.mu.Unlock()
}

func (s *Scheduler) execute(ctx context.Context, t *task) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	err := safeCall(ctx, t.fn)
	elapsed := time.Since(start)

	if err != nil {
		s.logger.ErrorContext(ctx, "periodic task failed",
			slog.String("task_name", t.name),
			logger.Duration(elapsed),
			logger.Error(err))
		return err
	}
	s.logger.InfoContext(ctx, "periodic task finished",
		slog.String("task_name", t.name),
		logger.Duration(elapsed))
	return nil
}

func safeCall(ctx context.Context, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: task panicked: %v", r)
		}
	}()
	return fn(ctx)
}
