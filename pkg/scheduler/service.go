package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/posintel/pkg/observability"
	"github.com/ethpandaops/posintel/pkg/tasks"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Service defines the public interface for the scheduler
type Service interface {
	// Start initializes and starts the scheduler service
	Start(ctx context.Context) error

	// Stop gracefully shuts down the scheduler service
	Stop() error
}

// service enqueues a pipeline run on every cron tick while it holds the
// scheduler leadership
type service struct {
	log logrus.FieldLogger
	cfg *Config

	enqueuer tasks.Enqueuer
	elector  LeaderElector
	tracker  scheduleTracker
	cron     *cron.Cron
	now      func() time.Time

	ctx    context.Context //nolint:containedctx // Cancelled on Stop, read by cron jobs
	cancel context.CancelFunc
}

// NewService creates a new scheduler service. Leadership and the last
// trigger time are kept in Redis under <prefix>:scheduler:*.
func NewService(log logrus.FieldLogger, cfg *Config, client redis.Cmdable, prefix string, enqueuer tasks.Enqueuer) (Service, error) {
	return newService(log, cfg, client, prefix, enqueuer)
}

func newService(log logrus.FieldLogger, cfg *Config, client redis.Cmdable, prefix string, enqueuer tasks.Enqueuer) (*service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	log = log.WithField("service", "scheduler")

	return &service{
		log:      log,
		cfg:      cfg,
		enqueuer: enqueuer,
		elector:  NewLeaderElector(log, client, key(prefix, "scheduler:leader"), cfg.LeaseTTL, cfg.RenewInterval),
		tracker:  newScheduleTracker(log, client, key(prefix, "scheduler:last_run")),
		cron:     cron.New(cron.WithLocation(loc)),
		now:      time.Now,
	}, nil
}

func key(prefix, name string) string {
	if prefix == "" {
		return name
	}

	return prefix + ":" + name
}

// Start initializes and starts the scheduler service
func (s *service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if err := s.elector.Start(ctx); err != nil {
		return fmt.Errorf("failed to start leader election: %w", err)
	}

	entryID, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.trigger(s.ctx); err != nil {
			s.log.WithError(err).Error("Scheduled run failed to enqueue")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register schedule %s: %w", s.cfg.Schedule, err)
	}

	s.cron.Start()

	s.log.WithFields(logrus.Fields{
		"schedule": s.cfg.Schedule,
		"next":     s.cron.Entry(entryID).Next,
		"stages":   s.cfg.Stages,
	}).Info("Scheduler service started (participating in leader election)")

	return nil
}

// trigger enqueues a run when this instance is the leader and the previous
// trigger is older than the minimum interval. It reports whether a run was
// enqueued.
func (s *service) trigger(ctx context.Context) (bool, error) {
	if !s.elector.IsLeader() {
		s.log.Debug("Not the leader, skipping scheduled run")
		return false, nil
	}

	now := s.now()

	lastRun, err := s.tracker.GetLastRun(ctx)
	if err != nil {
		// A missing timestamp must not block the schedule
		s.log.WithError(err).Warn("Failed to read last scheduled run")
	}

	if !lastRun.IsZero() && now.Sub(lastRun) < s.cfg.MinInterval {
		s.log.WithField("last_run", lastRun).Info("Previous scheduled run is too recent, skipping")
		return false, nil
	}

	info, err := s.enqueuer.EnqueueRun(ctx, tasks.RunPayload{
		Stages:     s.cfg.Stages,
		Trigger:    tasks.TriggerSchedule,
		EnqueuedAt: now.UTC(),
	})
	if err != nil {
		observability.RecordError("scheduler", "enqueue_error")
		return false, err
	}

	if err := s.tracker.SetLastRun(ctx, now); err != nil {
		s.log.WithError(err).Warn("Failed to record scheduled run")
	}

	s.log.WithField("task_id", info.ID).Info("Enqueued scheduled pipeline run")

	return true, nil
}

// Stop gracefully shuts down the scheduler service
func (s *service) Stop() error {
	stopped := s.cron.Stop()

	select {
	case <-stopped.Done():
	case <-time.After(10 * time.Second):
		s.log.Warn("Timed out waiting for scheduled run to finish")
	}

	if s.cancel != nil {
		s.cancel()
	}

	if err := s.elector.Stop(); err != nil {
		return err
	}

	s.log.Info("Scheduler service stopped")

	return nil
}

var _ Service = (*service)(nil)
