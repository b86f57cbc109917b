package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"racikpos/backend/internal/domain"
)

const jobTimeout = 2 * time.Minute

// Jobs is the part of the service the scheduler drives.
type Jobs interface {
	CheckLowStock(ctx context.Context) (int, error)
	CurrentMonthReport(ctx context.Context) (domain.FinanceReport, error)
}

// Scheduler runs the periodic stock check and finance cache warm-up.
type Scheduler struct {
	cron        *cron.Cron
	jobs        Jobs
	stockSpec   string
	financeSpec string
	logger      *zap.Logger
}

// New builds a scheduler. An empty spec disables that job.
func New(jobs Jobs, stockSpec string, financeSpec string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:        cron.New(cron.WithChain(cron.Recover(cronLogger{logger}))),
		jobs:        jobs,
		stockSpec:   stockSpec,
		financeSpec: financeSpec,
		logger:      logger,
	}
}

// Start registers the jobs and starts the cron loop. It fails without
// starting anything when a spec does not parse.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler",
		zap.String("low_stock", s.stockSpec),
		zap.String("finance_warmup", s.financeSpec),
	)

	if s.stockSpec != "" {
		if _, err := s.cron.AddFunc(s.stockSpec, s.checkLowStock); err != nil {
			return fmt.Errorf("schedule low stock check: %w", err)
		}
	}
	if s.financeSpec != "" {
		if _, err := s.cron.AddFunc(s.financeSpec, s.warmFinanceReport); err != nil {
			return fmt.Errorf("schedule finance warm-up: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) checkLowStock() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	count, err := s.jobs.CheckLowStock(ctx)
	if err != nil {
		s.logger.Error("low stock check failed", zap.Error(err))
		return
	}
	s.logger.Info("low stock check finished", zap.Int("alerts", count))
}

func (s *Scheduler) warmFinanceReport() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	report, err := s.jobs.CurrentMonthReport(ctx)
	if err != nil {
		s.logger.Error("finance warm-up failed", zap.Error(err))
		return
	}
	s.logger.Debug("finance report warmed",
		zap.Int64("sales", report.Sales),
		zap.Float64("revenue", report.Summary.TotalRevenue),
	)
}

// cronLogger routes cron's own messages, including recovered panics, to zap.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
