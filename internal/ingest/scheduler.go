package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Runner performs one ingestion pass. *Service satisfies it.
type Runner interface {
	Run(ctx context.Context) Report
}

// RunState is the bookkeeping of the last scheduled pass.
type RunState struct {
	Runs      int
	LastRunAt time.Time
	Last      Report
}

// Scheduler re-runs ingestion on a cron expression. Five-field expressions
// and an optional leading seconds field are accepted, as are descriptors
// like @hourly.
type Scheduler struct {
	runner Runner
	expr   string

	mu    sync.Mutex
	cron  *rcron.Cron
	state RunState
}

var parser = rcron.NewParser(
	rcron.SecondOptional | rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor,
)

// NewScheduler validates expr up front.
func NewScheduler(runner Runner, expr string) (*Scheduler, error) {
	if _, err := parser.Parse(expr); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return &Scheduler{runner: runner, expr: expr}, nil
}

// Run blocks until ctx ends, waiting for an in-flight pass before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	c := rcron.New(rcron.WithParser(parser), rcron.WithChain(rcron.SkipIfStillRunning(rcron.DiscardLogger)))
	if _, err := c.AddFunc(s.expr, func() { s.execute(ctx) }); err != nil {
		return fmt.Errorf("register schedule: %w", err)
	}
	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	c.Start()
	log.Printf("[ingest] scheduler started (%s)", s.expr)

	<-ctx.Done()
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Printf("[ingest] stop timeout waiting for running pass")
	}
	log.Printf("[ingest] scheduler stopped")
	return nil
}

// Next reports the next activation, zero before Run.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) execute(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	log.Printf("[ingest] scheduled pass starting")
	rep := s.runner.Run(ctx)

	s.mu.Lock()
	s.state.Runs++
	s.state.LastRunAt = time.Now()
	s.state.Last = rep
	s.mu.Unlock()
}
