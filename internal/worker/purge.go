package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const purgeTimeout = time.Minute

// InvitePurger deletes invites that expired unused before a cutoff.
type InvitePurger interface {
	PurgeExpiredInvites(ctx context.Context, before time.Time) (int64, error)
}

// Purge runs one cleanup pass.
func Purge(ctx context.Context, purger InvitePurger, now time.Time, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()
	n, err := purger.PurgeExpiredInvites(ctx, now)
	if err != nil {
		logger.Error("purge expired invites", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("purged expired invites", zap.Int64("count", n))
	}
}

// NewScheduler returns a cron engine with the invite purge registered on schedule.
// The caller starts and stops it.
func NewScheduler(ctx context.Context, schedule string, purger InvitePurger, logger *zap.Logger) (*cron.Cron, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(schedule, func() { Purge(ctx, purger, time.Now().UTC(), logger) }); err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}
	return c, nil
}
