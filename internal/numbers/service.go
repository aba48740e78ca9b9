package numbers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dialops/internal/audit"
	"dialops/internal/calls"
)

var (
	ErrInvalidRequest = errors.New("numbers: invalid request")
	ErrUnknownState   = errors.New("numbers: unknown state")
	ErrNoInventory    = errors.New("numbers: no inventory")
	ErrBulkInProgress = errors.New("numbers: bulk purchase already running")
)

// Locker serializes provider-heavy flows across dashboard replicas.
// The redis-backed implementation lives in locker.go; tests use a no-op.
type Locker interface {
	Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, holder string) error
}

// Service owns number lifecycle: listing, search, purchase, rename,
// release, and reconciliation against the CRM's assignment state.
type Service struct {
	provider Provider
	crm      AssignmentSource
	audit    *audit.Service
	locker   Locker
	log      *slog.Logger

	// roleOverrides pins numbers the substring convention would
	// misclassify. Keyed by normalized phone.
	roleOverrides map[string]Role

	// pause is time.Sleep in production; injectable so bulk-purchase tests
	// do not wait out the provider back-off.
	pause func(time.Duration)
}

type ServiceOption func(*Service)

func WithRoleOverrides(overrides map[string]Role) ServiceOption {
	return func(s *Service) { s.roleOverrides = overrides }
}

func WithLocker(l Locker) ServiceOption {
	return func(s *Service) { s.locker = l }
}

func WithPause(pause func(time.Duration)) ServiceOption {
	return func(s *Service) { s.pause = pause }
}

func NewService(provider Provider, crm AssignmentSource, auditSvc *audit.Service, log *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		provider: provider,
		crm:      crm,
		audit:    auditSvc,
		log:      log,
		pause:    time.Sleep,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the owned roster with roles tagged.
func (s *Service) List(ctx context.Context) ([]OwnedNumber, error) {
	owned, err := s.provider.ListOwned(ctx)
	if err != nil {
		return nil, fmt.Errorf("numbers: list owned: %w", err)
	}
	for i := range owned {
		owned[i].Role = ResolveRole(owned[i].PhoneNumber, s.roleOverrides)
	}
	return owned, nil
}

// Search finds purchasable numbers in an area code.
func (s *Service) Search(ctx context.Context, areaCode string, limit int) ([]AvailableNumber, error) {
	if areaCode == "" {
		return nil, fmt.Errorf("%w: area code is required", ErrInvalidRequest)
	}
	if limit <= 0 {
		limit = 20
	}
	return s.provider.SearchAvailable(ctx, areaCode, limit)
}

// Purchase buys a specific number and attaches it to the messaging
// campaign. The attach step is best-effort: a purchased number without A2P
// is usable, one that failed to purchase is not.
func (s *Service) Purchase(ctx context.Context, actor audit.Actor, phoneNumber, friendlyName string) (OwnedNumber, error) {
	if phoneNumber == "" {
		return OwnedNumber{}, fmt.Errorf("%w: phone number is required", ErrInvalidRequest)
	}

	bought, err := s.provider.Purchase(ctx, phoneNumber, friendlyName)
	if err != nil {
		return OwnedNumber{}, fmt.Errorf("numbers: purchase %s: %w", phoneNumber, err)
	}
	bought.Role = ResolveRole(bought.PhoneNumber, s.roleOverrides)

	if err := s.provider.AttachToMessagingService(ctx, bought.SID); err != nil {
		s.log.Warn("messaging service attach failed", "sid", bought.SID, "err", err)
	}

	s.auditLog(ctx, actor, audit.EventTypeNumberPurchased, bought.PhoneNumber, bought.SID, "number purchased")
	return bought, nil
}

// QuickPurchase buys the first available number in a role's area code
// (510 for setters, 650 for closers) with a role-prefixed friendly name.
func (s *Service) QuickPurchase(ctx context.Context, actor audit.Actor, areaCode, friendlyName string) (OwnedNumber, error) {
	if areaCode == "" {
		return OwnedNumber{}, fmt.Errorf("%w: area code is required", ErrInvalidRequest)
	}

	found, err := s.provider.SearchAvailable(ctx, areaCode, 5)
	if err != nil {
		return OwnedNumber{}, fmt.Errorf("numbers: quick purchase search: %w", err)
	}
	if len(found) == 0 {
		return OwnedNumber{}, fmt.Errorf("%w: area code %s", ErrNoInventory, areaCode)
	}

	if friendlyName == "" {
		rolePrefix := "State"
		switch areaCode {
		case SetterAreaCode:
			rolePrefix = "Setter"
		case CloserAreaCode:
			rolePrefix = "Closer"
		}
		friendlyName = rolePrefix + " " + found[0].PhoneNumber
	}
	return s.Purchase(ctx, actor, found[0].PhoneNumber, friendlyName)
}

// UpdateFriendlyName renames an owned number.
func (s *Service) UpdateFriendlyName(ctx context.Context, actor audit.Actor, sid, friendlyName string) (OwnedNumber, error) {
	if sid == "" || friendlyName == "" {
		return OwnedNumber{}, fmt.Errorf("%w: sid and friendly name are required", ErrInvalidRequest)
	}
	updated, err := s.provider.UpdateFriendlyName(ctx, sid, friendlyName)
	if err != nil {
		return OwnedNumber{}, fmt.Errorf("numbers: update %s: %w", sid, err)
	}
	updated.Role = ResolveRole(updated.PhoneNumber, s.roleOverrides)
	s.auditLog(ctx, actor, audit.EventTypeNumberUpdated, updated.PhoneNumber, sid, "friendly name updated")
	return updated, nil
}

// Release returns a number to the provider pool.
func (s *Service) Release(ctx context.Context, actor audit.Actor, sid string) error {
	if sid == "" {
		return fmt.Errorf("%w: sid is required", ErrInvalidRequest)
	}
	if err := s.provider.Release(ctx, sid); err != nil {
		return fmt.Errorf("numbers: release %s: %w", sid, err)
	}
	s.auditLog(ctx, actor, audit.EventTypeNumberReleased, "", sid, "number released")
	return nil
}

// BulkUser identifies a CRM user a setter line is being bought for.
type BulkUser struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// BulkPurchaseResult collects per-user outcomes of a bulk setter purchase.
type BulkPurchaseResult struct {
	Purchased []BulkPurchased `json:"purchased"`
	Failed    []BulkFailed    `json:"failed"`
}

type BulkPurchased struct {
	User         string `json:"user"`
	UserID       string `json:"userId"`
	PhoneNumber  string `json:"phoneNumber"`
	SID          string `json:"sid"`
	FriendlyName string `json:"friendlyName"`
}

type BulkFailed struct {
	User  string `json:"user"`
	Error string `json:"error"`
}

const (
	bulkPurchaseLockKey = "numbers:bulk-purchase"
	bulkPurchaseLockTTL = 10 * time.Minute

	// purchasePauseInterval spaces sequential purchases to stay under the
	// provider's rate limits.
	purchasePauseInterval = 500 * time.Millisecond
)

// BulkPurchaseSetters buys one setter (510) number per CRM user,
// sequentially, collecting per-user failures instead of aborting the run.
// At most one bulk purchase runs at a time across all replicas.
func (s *Service) BulkPurchaseSetters(ctx context.Context, actor audit.Actor, users []BulkUser) (BulkPurchaseResult, error) {
	out := BulkPurchaseResult{Purchased: []BulkPurchased{}, Failed: []BulkFailed{}}
	if len(users) == 0 {
		return out, fmt.Errorf("%w: users are required", ErrInvalidRequest)
	}

	if s.locker != nil {
		holder := actor.UserID
		if holder == "" {
			holder = "system"
		}
		ok, err := s.locker.Acquire(ctx, bulkPurchaseLockKey, holder, bulkPurchaseLockTTL)
		if err != nil {
			return out, fmt.Errorf("numbers: bulk purchase lock: %w", err)
		}
		if !ok {
			return out, ErrBulkInProgress
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), bulkPurchaseLockKey, holder); err != nil {
				s.log.Warn("bulk purchase lock release failed", "err", err)
			}
		}()
	}

	for i, user := range users {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		found, err := s.provider.SearchAvailable(ctx, SetterAreaCode, 5)
		if err != nil {
			out.Failed = append(out.Failed, BulkFailed{User: user.Name, Error: err.Error()})
			continue
		}
		if len(found) == 0 {
			out.Failed = append(out.Failed, BulkFailed{User: user.Name, Error: "no available " + SetterAreaCode + " numbers found"})
			continue
		}

		bought, err := s.Purchase(ctx, actor, found[0].PhoneNumber, user.Name)
		if err != nil {
			out.Failed = append(out.Failed, BulkFailed{User: user.Name, Error: err.Error()})
			continue
		}

		out.Purchased = append(out.Purchased, BulkPurchased{
			User:         user.Name,
			UserID:       user.UserID,
			PhoneNumber:  bought.PhoneNumber,
			SID:          bought.SID,
			FriendlyName: bought.FriendlyName,
		})

		if i < len(users)-1 {
			s.pause(purchasePauseInterval)
		}
	}

	s.log.Info("bulk setter purchase complete",
		"requested", len(users),
		"purchased", len(out.Purchased),
		"failed", len(out.Failed),
	)
	return out, nil
}

// CRMComparison is the roster annotated with CRM assignment state.
type CRMComparison struct {
	Numbers []NumberCRMStatus    `json:"numbers"`
	Summary CRMComparisonSummary `json:"summary"`
}

type NumberCRMStatus struct {
	OwnedNumber
	InCRM      bool        `json:"inGHL"`
	Assignment *Assignment `json:"ghlData,omitempty"`
}

type CRMComparisonSummary struct {
	Total    int `json:"total"`
	InCRM    int `json:"inGHL"`
	NotInCRM int `json:"notInGHL"`
}

// CompareWithCRM reconciles the provider roster against CRM assignment
// state, matching by normalized phone number.
func (s *Service) CompareWithCRM(ctx context.Context) (CRMComparison, error) {
	owned, err := s.List(ctx)
	if err != nil {
		return CRMComparison{}, err
	}
	assignments, err := s.crm.ListAssignments(ctx)
	if err != nil {
		return CRMComparison{}, fmt.Errorf("numbers: crm assignments: %w", err)
	}

	byPhone := make(map[string]*Assignment, len(assignments))
	for i := range assignments {
		byPhone[calls.NormalizePhone(assignments[i].PhoneNumber)] = &assignments[i]
	}

	out := CRMComparison{Numbers: make([]NumberCRMStatus, 0, len(owned))}
	for _, n := range owned {
		st := NumberCRMStatus{OwnedNumber: n}
		if a, ok := byPhone[calls.NormalizePhone(n.PhoneNumber)]; ok {
			st.InCRM = true
			st.Assignment = a
		}
		out.Numbers = append(out.Numbers, st)
	}

	out.Summary.Total = len(out.Numbers)
	for _, n := range out.Numbers {
		if n.InCRM {
			out.Summary.InCRM++
		} else {
			out.Summary.NotInCRM++
		}
	}
	return out, nil
}

func (s *Service) auditLog(ctx context.Context, actor audit.Actor, eventType audit.EventType, phoneNumber, sid, msg string) {
	if s.audit == nil {
		return
	}
	// Best-effort: never fail a number operation on audit trouble.
	err := s.audit.LogNumberOperation(ctx, eventType, actor, phoneNumber, sid, msg, "")
	if err != nil {
		s.log.Warn("audit append failed", "type", string(eventType), "err", err)
	}
}
