// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// sweepTimeout bounds a single sweep run.
const sweepTimeout = 10 * time.Second

// ExpiredInviteDeactivator is the part of the invite ledger the sweeper uses.
type ExpiredInviteDeactivator interface {
	DeactivateExpired(ctx context.Context) (int64, error)
}

// InviteSweeper periodically turns off invites whose expiry has passed.
// Redemption checks expiry on its own; the sweep only keeps listings honest.
type InviteSweeper struct {
	cron    *cron.Cron
	invites ExpiredInviteDeactivator
	log     *logrus.Logger
}

// NewInviteSweeper schedules the sweep with a standard cron spec or a
// descriptor such as "@every 10m".
func NewInviteSweeper(schedule string, invites ExpiredInviteDeactivator, log *logrus.Logger) (*InviteSweeper, error) {
	s := &InviteSweeper{
		cron:    cron.New(),
		invites: invites,
		log:     log,
	}
	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return nil, fmt.Errorf("schedule invite sweep %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce performs one sweep and logs the outcome.
func (s *InviteSweeper) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	n, err := s.invites.DeactivateExpired(ctx)
	if err != nil {
		s.log.WithError(err).Error("invite sweep failed")
		return
	}
	if n > 0 {
		s.log.WithField("deactivated", n).Info("expired invites deactivated")
	}
}

func (s *InviteSweeper) Start() {
	s.cron.Start()
	s.log.Info("invite sweeper started")
}

// Stop halts scheduling and waits for a running sweep to finish or ctx to
// expire.
func (s *InviteSweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("invite sweeper did not stop in time")
	}
}
