// Package scheduler runs periodic re-indexing of crawl roots on cron
// schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wesm/livefind/internal/config"
)

// IndexFunc re-indexes one root. It should return promptly once ctx is
// cancelled.
type IndexFunc func(ctx context.Context, root string) error

// RootStatus describes a scheduled root.
type RootStatus struct {
	Root      string    `json:"root"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run"`
	Schedule  string    `json:"schedule"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler triggers IndexFunc per root. At most one run per root is
// active at a time; a tick that arrives while the previous run is still
// going is skipped.
type Scheduler struct {
	cron      *cron.Cron
	indexFunc IndexFunc
	logger    *slog.Logger

	mu        sync.RWMutex
	jobs      map[string]cron.EntryID // root -> cron entry
	schedules map[string]string
	running   map[string]bool
	lastRun   map[string]time.Time // last successful run
	lastErr   map[string]error

	ctx     context.Context // cancelled on Stop
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// New creates a scheduler that calls fn for due roots.
func New(fn IndexFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		indexFunc: fn,
		logger:    slog.Default(),
		jobs:      make(map[string]cron.EntryID),
		schedules: make(map[string]string),
		running:   make(map[string]bool),
		lastRun:   make(map[string]time.Time),
		lastErr:   make(map[string]error),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddRoot schedules re-indexing of root, replacing any earlier schedule.
func (s *Scheduler) AddRoot(root, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.jobs[root]; ok {
		s.cron.Remove(id)
		delete(s.jobs, root)
		delete(s.schedules, root)
	}

	id, err := s.cron.AddFunc(cronExpr, func() {
		if !s.claim(root) {
			s.logger.Debug("skipping tick, previous run still active", "root", root)
			return
		}
		s.run(root)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.jobs[root] = id
	s.schedules[root] = cronExpr
	s.logger.Info("scheduled re-index",
		"root", root,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(id).Next)
	return nil
}

// AddRootsFromConfig schedules every configured root with the index
// schedule. Nothing is scheduled when the schedule is empty.
func (s *Scheduler) AddRootsFromConfig(cfg *config.Config) (int, []error) {
	if cfg.Index.Schedule == "" {
		return 0, nil
	}
	var errs []error
	scheduled := 0
	for _, root := range cfg.IndexRoots() {
		if err := s.AddRoot(root, cfg.Index.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", root, err))
			continue
		}
		scheduled++
	}
	return scheduled, errs
}

// RemoveRoot drops the schedule for root.
func (s *Scheduler) RemoveRoot(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.jobs[root]; ok {
		s.cron.Remove(id)
		delete(s.jobs, root)
		delete(s.schedules, root)
		s.logger.Info("removed schedule", "root", root)
	}
}

// IsScheduled reports whether root has a schedule.
func (s *Scheduler) IsScheduled(root string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[root]
	return ok
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", n)
}

// IsRunning reports whether the scheduler was started and not stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop halts scheduling, cancels active runs and returns a context that is
// done once they have returned.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		cancel()
	}()
	return ctx
}

// TriggerIndex starts a run for root now, outside its schedule.
func (s *Scheduler) TriggerIndex(root string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is stopped")
	}
	if _, ok := s.jobs[root]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("root %s is not scheduled", root)
	}
	if s.running[root] {
		s.mu.Unlock()
		return fmt.Errorf("re-index already running for %s", root)
	}
	s.running[root] = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(root)
	return nil
}

// claim marks root as running. It fails when the scheduler is stopped or
// root is already running.
func (s *Scheduler) claim(root string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.running[root] {
		return false
	}
	s.running[root] = true
	s.wg.Add(1)
	return true
}

// run executes one re-index. The caller has claimed root.
func (s *Scheduler) run(root string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[root] = false
		s.mu.Unlock()
	}()

	s.logger.Info("starting scheduled re-index", "root", root)
	start := time.Now()
	err := s.indexFunc(s.ctx, root)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr[root] = err
		s.logger.Error("scheduled re-index failed", "root", root, "duration", time.Since(start), "error", err)
		return
	}
	s.lastRun[root] = time.Now()
	s.lastErr[root] = nil
	s.logger.Info("scheduled re-index completed", "root", root, "duration", time.Since(start))
}

// Status reports every scheduled root, sorted by root.
func (s *Scheduler) Status() []RootStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]RootStatus, 0, len(s.jobs))
	for root, id := range s.jobs {
		st := RootStatus{
			Root:     root,
			Running:  s.running[root],
			LastRun:  s.lastRun[root],
			NextRun:  s.cron.Entry(id).Next,
			Schedule: s.schedules[root],
		}
		if err := s.lastErr[root]; err != nil {
			st.LastError = err.Error()
		}
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Root < statuses[j].Root })
	return statuses
}
