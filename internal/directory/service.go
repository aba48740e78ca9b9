package directory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dialops/internal/audit"
)

// CRMSource is the live CRM side of the directory.
type CRMSource interface {
	ListStaffUsers(ctx context.Context) ([]StaffUser, error)
}

// Service serves staff users from the local store and keeps the store in
// sync with the CRM.
type Service struct {
	store Store
	crm   CRMSource
	audit *audit.Service
	clock func() time.Time
	log   *slog.Logger
}

func NewService(store Store, crm CRMSource, auditSvc *audit.Service, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store: store,
		crm:   crm,
		audit: auditSvc,
		clock: time.Now,
		log:   log,
	}
}

// Users returns the staff directory, preferring the local store. An empty
// store falls through to the live CRM so a fresh deployment still works
// before its first sync.
func (s *Service) Users(ctx context.Context) ([]StaffUser, Source, error) {
	stored, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("directory: list users: %w", err)
	}
	if len(stored) > 0 {
		return stored, SourceDB, nil
	}

	live, err := s.crm.ListStaffUsers(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("directory: crm users: %w", err)
	}
	return live, SourceCRM, nil
}

// SyncUsers pulls the CRM staff list and upserts it into the local store.
func (s *Service) SyncUsers(ctx context.Context, actor audit.Actor) (SyncResult, error) {
	live, err := s.crm.ListStaffUsers(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("directory: crm users: %w", err)
	}

	res := SyncResult{FromAPI: len(live)}
	now := s.clock().UTC()
	for _, u := range live {
		u.SyncedAt = now
		created, err := s.store.Upsert(ctx, u)
		if err != nil {
			return res, fmt.Errorf("directory: upsert %s: %w", u.CRMUserID, err)
		}
		if created {
			res.Added++
		} else {
			res.Updated++
		}
	}

	s.log.Info("staff directory synced",
		"from_api", res.FromAPI, "added", res.Added, "updated", res.Updated)
	if s.audit != nil {
		meta := fmt.Sprintf(`{"fromApi":%d,"added":%d,"updated":%d}`, res.FromAPI, res.Added, res.Updated)
		if err := s.audit.LogDirectorySync(ctx, actor, "staff directory synced", meta); err != nil {
			s.log.Warn("audit append failed", "err", err)
		}
	}
	return res, nil
}
