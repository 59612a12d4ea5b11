package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mediatechlab/trendwatch/internal/metrics"
	"github.com/mediatechlab/trendwatch/internal/trends"
)

// ErrBusy is returned when a run is submitted while another is active. The
// dataset assumes a single writer, so runs never overlap.
var ErrBusy = errors.New("a run is already in progress")

// Service executes runs with bookkeeping: it assigns run IDs, tracks
// lifecycle state in a RunStore, and guarantees at most one active run.
type Service struct {
	runner *Runner
	store  trends.RunStore
	ids    trends.IDGenerator
	clock  trends.Clock
	log    *zap.Logger
	busy   atomic.Bool
}

// NewService wires a Runner to its bookkeeping collaborators.
func NewService(runner *Runner, store trends.RunStore, ids trends.IDGenerator, clk trends.Clock, log *zap.Logger) *Service {
	return &Service{
		runner: runner,
		store:  store,
		ids:    ids,
		clock:  clk,
		log:    log,
	}
}

// Execute runs the pipeline synchronously and returns the finished run.
func (s *Service) Execute(ctx context.Context, executionDate time.Time) (trends.Run, error) {
	run, err := s.begin(ctx, executionDate)
	if err != nil {
		return trends.Run{}, err
	}
	return s.finish(ctx, run)
}

// Submit starts a run in the background and returns its queued record
// immediately. The run detaches from the caller's context: an HTTP request
// ending must not cancel a half-finished write.
func (s *Service) Submit(ctx context.Context, executionDate time.Time) (trends.Run, error) {
	run, err := s.begin(ctx, executionDate)
	if err != nil {
		return trends.Run{}, err
	}
	go func() {
		if _, err := s.finish(context.Background(), run); err != nil {
			s.log.Error("background run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}()
	return run, nil
}

// GetRun fetches one run's bookkeeping record.
func (s *Service) GetRun(ctx context.Context, id string) (trends.Run, error) {
	return s.store.GetRun(ctx, id)
}

// ListRuns returns recent runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]trends.Run, error) {
	return s.store.ListRuns(ctx, limit)
}

// begin claims the single-run slot and persists the queued record. The
// slot is released by finish, or here when setup fails.
func (s *Service) begin(ctx context.Context, executionDate time.Time) (trends.Run, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return trends.Run{}, ErrBusy
	}

	window, err := s.runner.Window(executionDate)
	if err != nil {
		s.busy.Store(false)
		return trends.Run{}, err
	}
	id, err := s.ids.NewID()
	if err != nil {
		s.busy.Store(false)
		return trends.Run{}, fmt.Errorf("new run id: %w", err)
	}

	run := trends.Run{
		ID:            id,
		ExecutionDate: trends.Day(executionDate),
		Window:        window,
		Status:        trends.RunStatusQueued,
		Submitted:     s.clock.Now().UTC(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		s.busy.Store(false)
		return trends.Run{}, fmt.Errorf("create run record: %w", err)
	}
	return run, nil
}

// finish drives the pipeline and records the outcome.
func (s *Service) finish(ctx context.Context, run trends.Run) (trends.Run, error) {
	defer s.busy.Store(false)

	started := s.clock.Now().UTC()
	run.Status = trends.RunStatusRunning
	run.Started = &started
	if err := s.store.UpdateRun(ctx, run); err != nil {
		s.log.Warn("mark run running", zap.String("run_id", run.ID), zap.Error(err))
	}

	report, runErr := s.runner.Run(ctx, run.ExecutionDate)

	finished := s.clock.Now().UTC()
	run.Finished = &finished
	run.Report = &report
	if runErr != nil {
		run.Status = trends.RunStatusFailed
		run.ErrorText = runErr.Error()
	} else {
		run.Status = trends.RunStatusSucceeded
	}
	metrics.ObserveRun(string(run.Status), finished.Sub(started))

	if err := s.store.UpdateRun(ctx, run); err != nil {
		s.log.Error("persist run outcome", zap.String("run_id", run.ID), zap.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("persist run outcome: %w", err)
		}
	}
	return run, runErr
}
