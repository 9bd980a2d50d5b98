package job

import (
	"context"
	"fmt"
	"log/slog"

	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/service"
	"github.com/robfig/cron/v3"
)

type SweepJob struct {
	scheduler service.SchedulerService
	log       *slog.Logger
}

func NewSweepJob(scheduler service.SchedulerService, logger *slog.Logger) *SweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepJob{scheduler: scheduler, log: logger.With("module", "sweep_job")}
}

func (j *SweepJob) Run() {
	if _, err := j.scheduler.RunSweep(context.Background()); err != nil {
		j.log.Error("sweep failed", "event", "sweep_failed", "error", err)
	}
}

// NewCron registers the periodic jobs. A run that is still going when the
// next one is due makes the next one skip.
func NewCron(cfg config.Sweep, sweep *SweepJob, refresh *TokenRefreshJob, logger *slog.Logger) (*cron.Cron, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{log: logger.With("module", "cron")}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := c.AddJob(cfg.Schedule, sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.Schedule, err)
	}
	if refresh != nil {
		if _, err := c.AddJob(cfg.RefreshEvery, refresh); err != nil {
			return nil, fmt.Errorf("invalid token refresh schedule %q: %w", cfg.RefreshEvery, err)
		}
	}
	return c, nil
}

// cronLogger routes cron's own logging into slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
