package memory

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/warden/internal/observability"
)

// UserLister enumerates the (tenant, user) pairs enforcement should visit.
type UserLister interface {
	ListMemoryUsers(ctx context.Context) ([][2]string, error)
}

// Scheduler runs periodic memory enforcement for every known user.
type Scheduler struct {
	cron     *cron.Cron
	enforcer *Enforcer
	users    UserLister
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewScheduler creates a scheduler that is not yet running.
func NewScheduler(enforcer *Enforcer, users UserLister, logger *observability.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		enforcer: enforcer,
		users:    users,
		logger:   logger,
		metrics:  metrics,
	}
}

// Start schedules enforcement with the given cron spec (e.g. "@hourly") and
// begins running it.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, s.runOnce)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runOnce() {
	ctx := context.Background()

	users, err := s.users.ListMemoryUsers(ctx)
	if err != nil {
		s.logger.Error(ctx, "memory enforcement: listing users failed", "error", err)
		return
	}

	for _, pair := range users {
		tenantID, userID := pair[0], pair[1]
		report, err := s.enforcer.Enforce(ctx, tenantID, userID)
		if err != nil {
			s.logger.Error(ctx, "memory enforcement failed",
				"tenant_id", tenantID, "user_id", userID, "error", err)
			continue
		}
		if report.Total() == 0 {
			continue
		}
		s.logger.Info(ctx, "memory enforcement archived items",
			"tenant_id", tenantID, "user_id", userID, "archived", report.Total())
		if s.metrics != nil {
			for level, count := range report.ArchivedByLevel {
				s.metrics.MemoryArchivedCounter.
					WithLabelValues(levelLabel(level)).
					Add(float64(count))
			}
		}
	}
}

func levelLabel(level int) string {
	return string(rune('0' + level))
}
