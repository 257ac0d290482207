package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/earnhub/backend/internal/services"
	"github.com/robfig/cron/v3"
)

// SalaryRunner pays the salary of one period
type SalaryRunner interface {
	Run(ctx context.Context, period string) (*services.SalaryRunReport, error)
}

// Scheduler runs the monthly salary evaluation for the month that just ended
type Scheduler struct {
	cron    *cron.Cron
	salary  SalaryRunner
	now     func() time.Time
	timeout time.Duration
}

func New(salary SalaryRunner) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		salary:  salary,
		now:     time.Now,
		timeout: 30 * time.Minute,
	}
}

// Start registers the salary job on a five-field cron spec and starts the scheduler.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.RunSalary); err != nil {
		return fmt.Errorf("schedule salary run %q: %w", spec, err)
	}
	s.cron.Start()
	log.Printf("[SCHEDULER] Salary run scheduled at %q (UTC)", spec)
	return nil
}

// Stop waits for a running job up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Printf("[SCHEDULER] Stopped before running job finished")
	}
}

// RunSalary evaluates the previous month. A concurrent run of the same period is skipped.
func (s *Scheduler) RunSalary() {
	period := services.PreviousSalaryPeriod(s.now())
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	report, err := s.salary.Run(ctx, period)
	switch {
	case errors.Is(err, services.ErrSalaryRunInProgress):
		log.Printf("[SCHEDULER] Salary run %s already in progress, skipping", period)
	case err != nil:
		log.Printf("[SCHEDULER] Salary run %s failed: %v", period, err)
	default:
		log.Printf("[SCHEDULER] Salary run %s paid %d account(s)", period, report.Paid)
	}
}
