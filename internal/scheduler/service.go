// Package scheduler runs the fixed maintenance jobs on cron schedules:
// document rescans and idle-session cleanup.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lectern-ai/lectern/internal/logging"
)

// Job is one named maintenance task on a cron schedule.
type Job struct {
	Name string
	Cron string
	Run  func(ctx context.Context) (string, error)
}

// Service runs maintenance jobs with cron. An overlapping run of the same
// job is skipped rather than stacked.
type Service struct {
	jobs    []Job
	cron    *cron.Cron
	started bool
}

// NewService creates a cron-backed scheduler over the given jobs.
func NewService(jobs ...Job) *Service {
	return &Service{
		jobs: jobs,
		cron: cron.New(
			cron.WithLocation(time.Local),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
	}
}

// Start registers all jobs and starts cron execution. Jobs run with the
// given ctx; canceling it cancels in-flight runs.
func (s *Service) Start(ctx context.Context) error {
	if s.started {
		return errors.New("scheduler already started")
	}

	for _, job := range s.jobs {
		job := job
		_, err := s.cron.AddFunc(job.Cron, func() {
			summary, runErr := job.Run(ctx)
			if runErr != nil {
				logging.Logger().Warn(
					"scheduled job failed",
					"job", job.Name,
					"err", runErr,
				)
				return
			}
			logging.Logger().Info(
				"scheduled job succeeded",
				"job", job.Name,
				"summary", summary,
			)
		})
		if err != nil {
			return fmt.Errorf("register cron job %q: %w", job.Name, err)
		}
	}

	s.cron.Start()
	s.started = true
	logging.Logger().Info("scheduler started", "jobs_registered", len(s.jobs))
	return nil
}

// Stop stops cron and waits for in-flight callbacks to finish or ctx cancellation.
func (s *Service) Stop(ctx context.Context) error {
	if !s.started {
		return nil
	}

	doneCtx := s.cron.Stop()
	s.started = false
	select {
	case <-doneCtx.Done():
		logging.Logger().Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
