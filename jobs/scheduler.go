package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"home-services-server/metrics"
)

const jobTimeout = 5 * time.Minute

// Scheduler runs named background jobs on cron specs.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
	ctx  context.Context
	stop context.CancelFunc
}

func NewScheduler(log *zap.Logger) *Scheduler {
	ctx, stop := context.WithCancel(context.Background())
	adapter := cronLogger{log: log.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		log:  log,
		ctx:  ctx,
		stop: stop,
	}
}

// Add registers fn under spec, e.g. "@every 1h" or "0 3 * * *".
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context) error) error {
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, fn) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.log.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) run(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	metrics.RecordJobRun(name, elapsed, err == nil)

	if err != nil {
		s.log.Error("job failed", zap.String("job", name), zap.Duration("elapsed", elapsed), zap.Error(err))
		return
	}
	s.log.Debug("job finished", zap.String("job", name), zap.Duration("elapsed", elapsed))
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop cancels running jobs and waits for them to return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.stop()
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
	s.log.Info("scheduler stopped")
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
