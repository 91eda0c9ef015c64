package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/warden/pkg/identitysync"
	"github.com/platinummonkey/warden/pkg/observability"
)

const (
	syncJobTimeout      = time.Hour
	integrityJobTimeout = 30 * time.Minute
	retentionJobTimeout = time.Hour
)

// cronLogger adapts the structured logger to cron.Logger
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).WithError(err).Error(msg)
}

func kvFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

// Scheduler builds the cron scheduler for identity sync, the integrity scan
// and audit retention. Jobs with an empty schedule are not added. A job
// still running when its next tick fires skips that tick.
func (a *App) Scheduler(ctx context.Context) (*cron.Cron, error) {
	logger := a.Logger.WithField("component", "scheduler")
	clog := cronLogger{logger: logger}

	c := cron.New(cron.WithLogger(clog), cron.WithChain(
		cron.Recover(clog),
		cron.SkipIfStillRunning(clog),
	))

	jobs := []struct {
		name     string
		schedule string
		timeout  time.Duration
		run      func(context.Context) error
	}{
		{"identity sync", a.Config.Sync.Schedule, syncJobTimeout, a.RunSync},
		{"integrity scan", a.Config.Sync.IntegritySchedule, integrityJobTimeout, a.RunIntegrity},
		{"audit retention", a.Config.Sync.RetentionSchedule, retentionJobTimeout, a.RunRetention},
	}

	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		job := job
		_, err := c.AddFunc(job.schedule, func() {
			jobCtx, cancel := context.WithTimeout(ctx, job.timeout)
			defer cancel()

			log := logger.WithField("job", job.name)
			start := time.Now()
			if err := job.run(jobCtx); err != nil {
				log.WithError(err).Error("scheduled job failed")
				return
			}
			log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("scheduled job finished")
		})
		if err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", job.name, err)
		}
		logger.WithFields(map[string]interface{}{"job": job.name, "schedule": job.schedule}).Info("job scheduled")
	}

	return c, nil
}

// RunSync reconciles every identity with its profile
func (a *App) RunSync(ctx context.Context) error {
	summary, err := a.Sync.SynchronizeAll(ctx)
	if err != nil {
		return err
	}
	a.Logger.WithFields(map[string]interface{}{
		"processed": summary.Processed,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Info("identity sync complete")
	return nil
}

// RunIntegrity scans both stores and reports discrepancies without
// repairing them
func (a *App) RunIntegrity(ctx context.Context) error {
	report, err := a.Sync.ValidateIntegrity(ctx)
	if err != nil {
		return err
	}

	log := a.Logger.WithFields(map[string]interface{}{
		"identities":    report.IdentitiesScanned,
		"profiles":      report.ProfilesScanned,
		"discrepancies": len(report.Discrepancies),
	})
	if len(report.Discrepancies) > 0 {
		for _, kind := range identitysync.DiscrepancyKinds {
			if n := report.Count(kind); n > 0 {
				log = log.WithField(string(kind), n)
			}
		}
		log.Warn("integrity scan found discrepancies")
		return nil
	}
	log.Info("integrity scan clean")
	return nil
}

// RunRetention deletes, and optionally archives, expired audit events
func (a *App) RunRetention(ctx context.Context) error {
	_, err := a.Audit.Cleanup(ctx, a.Config.Audit.Retention())
	return err
}

// ReportDBStats publishes connection pool stats until ctx is done
func (a *App) ReportDBStats(ctx context.Context, interval time.Duration) {
	if a.Metrics == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Metrics.UpdateDBStats(a.Postgres.Primary().Stats())
		}
	}
}
