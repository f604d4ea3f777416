package service

import (
	"context"
	"time"

	"github.com/asso-tools/assobot/internal/reconcile"
)

// RoleAuditCallback receives the report of each periodic reconciliation
type RoleAuditCallback func(report *reconcile.Report)

// StartRoleAudit runs a background loop that reconciles the directory against
// the expected role groups every interval and invokes the callback with the
// report. It blocks until the context is cancelled, so it should be launched
// in a separate goroutine.
func (s *Service) StartRoleAudit(ctx context.Context, interval time.Duration, dir reconcile.Directory, resetAfter time.Duration, callback RoleAuditCallback) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Role audit started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Role audit stopped")
			return
		case <-ticker.C:
			s.runRoleAudit(ctx, dir, resetAfter, callback)
		}
	}
}

// runRoleAudit drops cached results first so that each pass reads fresh data
func (s *Service) runRoleAudit(ctx context.Context, dir reconcile.Directory, resetAfter time.Duration, callback RoleAuditCallback) {
	s.InvalidateCache()
	report, err := s.ReconcileRoles(ctx, dir, s.now(), resetAfter)
	if err != nil {
		s.logger.Errorf("Failed to reconcile roles: %v", err)
		return
	}
	callback(report)
}
