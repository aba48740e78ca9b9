package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to dashboard users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogNumberOperation records a number lifecycle action by an actor.
func (s *Service) LogNumberOperation(ctx context.Context, t EventType, actor Actor, phoneNumber, sid, message, metadata string) error {
	return s.Append(ctx, Event{
		Type:        t,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		PhoneNumber: phoneNumber,
		NumberSID:   sid,
		Message:     message,
		Metadata:    metadata,
	})
}

// LogDirectorySync records a CRM staff-directory sync run.
func (s *Service) LogDirectorySync(ctx context.Context, actor Actor, message, metadata string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeDirectorySynced,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		Message:     message,
		Metadata:    metadata,
	})
}
