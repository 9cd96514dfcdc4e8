package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler re-verifies cases on a cron schedule.
type Scheduler struct {
	verifier *Verifier
	schedule string
	caseIDs  []string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewScheduler creates a scheduler running verifier on schedule. An empty
// caseIDs list verifies every known case on each run.
func NewScheduler(verifier *Verifier, schedule string, caseIDs []string) *Scheduler {
	return &Scheduler{
		verifier: verifier,
		schedule: schedule,
		caseIDs:  caseIDs,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "evidence.verify.scheduler"),
	}
}

// Start begins scheduled verification.
//
// Common cron expressions:
//   - "0 3 * * *"    - Daily at 3 AM
//   - "0 */6 * * *"  - Every 6 hours
//   - "@hourly"      - Every hour
//
// If the schedule is empty, the scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("verification schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule verification: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("verification scheduler started",
		"schedule", s.schedule,
		"cases", len(s.caseIDs),
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce verifies the configured cases and returns how many failed
// verification.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	caseIDs := s.caseIDs
	if len(caseIDs) == 0 {
		cases, err := s.verifier.store.ListCases(ctx)
		if err != nil {
			s.logger.Error("scheduled verification failed", "error", err)
			return 0
		}
		for _, c := range cases {
			caseIDs = append(caseIDs, c.ID)
		}
	}

	failed := 0
	for _, caseID := range caseIDs {
		result, err := s.verifier.VerifyCase(ctx, caseID)
		if err != nil {
			s.logger.Error("scheduled verification failed",
				"case_id", caseID,
				"error", err,
			)
			failed++
			continue
		}
		if !result.OK() {
			failed++
		}
	}

	s.logger.Info("scheduled verification completed",
		"cases", len(caseIDs),
		"failed", failed,
	)
	return failed
}

// Stop stops the scheduler and waits for a running verification to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("verification scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled verification time.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}

	next := entries[0].Next
	return &next
}
