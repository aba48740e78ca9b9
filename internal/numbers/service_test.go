package numbers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"dialops/internal/audit"
)

type fakeProvider struct {
	mu sync.Mutex

	owned     []OwnedNumber
	available map[string][]AvailableNumber

	searchErr   error
	purchaseErr error
	attachErr   error

	purchases []string
	attaches  []string
	releases  []string
}

func (f *fakeProvider) ListOwned(ctx context.Context) ([]OwnedNumber, error) {
	out := make([]OwnedNumber, len(f.owned))
	copy(out, f.owned)
	return out, nil
}

func (f *fakeProvider) SearchAvailable(ctx context.Context, areaCode string, limit int) ([]AvailableNumber, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	found := f.available[areaCode]
	if len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func (f *fakeProvider) Purchase(ctx context.Context, phoneNumber, friendlyName string) (OwnedNumber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.purchaseErr != nil {
		return OwnedNumber{}, f.purchaseErr
	}
	f.purchases = append(f.purchases, phoneNumber)
	if friendlyName == "" {
		friendlyName = phoneNumber
	}
	return OwnedNumber{SID: "PN" + phoneNumber, PhoneNumber: phoneNumber, FriendlyName: friendlyName}, nil
}

func (f *fakeProvider) UpdateFriendlyName(ctx context.Context, sid, friendlyName string) (OwnedNumber, error) {
	return OwnedNumber{SID: sid, PhoneNumber: "+15105550100", FriendlyName: friendlyName}, nil
}

func (f *fakeProvider) Release(ctx context.Context, sid string) error {
	f.releases = append(f.releases, sid)
	return nil
}

func (f *fakeProvider) AttachToMessagingService(ctx context.Context, sid string) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attaches = append(f.attaches, sid)
	return nil
}

type fakeAssignments struct {
	assignments []Assignment
	err         error
}

func (f *fakeAssignments) ListAssignments(ctx context.Context) ([]Assignment, error) {
	return f.assignments, f.err
}

func newTestService(p *fakeProvider, crm *fakeAssignments) (*Service, *audit.MemoryRepo) {
	repo := audit.NewMemoryRepo()
	svc := NewService(p, crm, audit.NewService(repo), slog.Default(), WithPause(func(time.Duration) {}))
	return svc, repo
}

func TestResolveRole_SubstringConvention(t *testing.T) {
	cases := []struct {
		number string
		want   Role
	}{
		{"+15105550100", RoleSetter},
		{"+16505550100", RoleCloser},
		{"+12025550100", RoleState},
		// Known collision mode: 510 elsewhere in the number.
		{"+14155105555", RoleSetter},
	}
	for _, tc := range cases {
		if got := ResolveRole(tc.number, nil); got != tc.want {
			t.Fatalf("ResolveRole(%q) = %s, want %s", tc.number, got, tc.want)
		}
	}
}

func TestResolveRole_OverridesWin(t *testing.T) {
	overrides := map[string]Role{"14155105555": RoleState}
	if got := ResolveRole("+14155105555", overrides); got != RoleState {
		t.Fatalf("expected override to win, got %s", got)
	}
}

func TestList_TagsRoles(t *testing.T) {
	p := &fakeProvider{owned: []OwnedNumber{
		{SID: "PN1", PhoneNumber: "+15105550100"},
		{SID: "PN2", PhoneNumber: "+12025550100"},
	}}
	svc, _ := newTestService(p, &fakeAssignments{})

	got, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got[0].Role != RoleSetter || got[1].Role != RoleState {
		t.Fatalf("expected roles tagged at ingestion, got %+v", got)
	}
}

func TestPurchase_AttachFailureIsNonFatal(t *testing.T) {
	p := &fakeProvider{attachErr: errors.New("a2p down")}
	svc, auditRepo := newTestService(p, &fakeAssignments{})

	bought, err := svc.Purchase(context.Background(), audit.Actor{UserID: "u1", Role: "admin"}, "+15105550100", "Jane")
	if err != nil {
		t.Fatalf("purchase should survive attach failure: %v", err)
	}
	if bought.PhoneNumber != "+15105550100" {
		t.Fatalf("unexpected purchase result: %+v", bought)
	}
	evs := auditRepo.Events()
	if len(evs) != 1 || evs[0].Type != audit.EventTypeNumberPurchased {
		t.Fatalf("expected purchase audit event, got %+v", evs)
	}
}

func TestQuickPurchase_RoleFriendlyName(t *testing.T) {
	p := &fakeProvider{available: map[string][]AvailableNumber{
		SetterAreaCode: {{PhoneNumber: "+15105550111"}},
	}}
	svc, _ := newTestService(p, &fakeAssignments{})

	bought, err := svc.QuickPurchase(context.Background(), audit.Actor{}, SetterAreaCode, "")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.HasPrefix(bought.FriendlyName, "Setter ") {
		t.Fatalf("expected Setter-prefixed friendly name, got %q", bought.FriendlyName)
	}
	if bought.Role != RoleSetter {
		t.Fatalf("expected setter role, got %s", bought.Role)
	}
}

func TestQuickPurchase_NoInventory(t *testing.T) {
	svc, _ := newTestService(&fakeProvider{available: map[string][]AvailableNumber{}}, &fakeAssignments{})

	_, err := svc.QuickPurchase(context.Background(), audit.Actor{}, CloserAreaCode, "")
	if !errors.Is(err, ErrNoInventory) {
		t.Fatalf("expected ErrNoInventory, got %v", err)
	}
}

func TestBulkPurchaseSetters_CollectsPerUserFailures(t *testing.T) {
	p := &fakeProvider{available: map[string][]AvailableNumber{
		SetterAreaCode: {{PhoneNumber: "+15105550111"}},
	}}
	svc, _ := newTestService(p, &fakeAssignments{})

	users := []BulkUser{
		{UserID: "u1", Name: "Jane Doe"},
		{UserID: "u2", Name: "John Roe"},
	}
	out, err := svc.BulkPurchaseSetters(context.Background(), audit.Actor{UserID: "admin"}, users)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(out.Purchased) != 2 || len(out.Failed) != 0 {
		t.Fatalf("expected 2 purchases, got %+v", out)
	}
	if out.Purchased[0].FriendlyName != "Jane Doe" {
		t.Fatalf("expected user name as friendly name, got %q", out.Purchased[0].FriendlyName)
	}
}

func TestBulkPurchaseSetters_SearchFailureDoesNotAbortRun(t *testing.T) {
	p := &fakeProvider{searchErr: errors.New("twilio down")}
	svc, _ := newTestService(p, &fakeAssignments{})

	out, err := svc.BulkPurchaseSetters(context.Background(), audit.Actor{}, []BulkUser{{UserID: "u1", Name: "A"}, {UserID: "u2", Name: "B"}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(out.Failed) != 2 {
		t.Fatalf("expected both users to fail, got %+v", out)
	}
}

type stubLocker struct {
	held bool
}

func (l *stubLocker) Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *stubLocker) Release(ctx context.Context, key, holder string) error {
	l.held = false
	return nil
}

func TestBulkPurchaseSetters_RefusesConcurrentRun(t *testing.T) {
	p := &fakeProvider{available: map[string][]AvailableNumber{
		SetterAreaCode: {{PhoneNumber: "+15105550111"}},
	}}
	locker := &stubLocker{held: true}
	repo := audit.NewMemoryRepo()
	svc := NewService(p, &fakeAssignments{}, audit.NewService(repo), slog.Default(),
		WithPause(func(time.Duration) {}), WithLocker(locker))

	_, err := svc.BulkPurchaseSetters(context.Background(), audit.Actor{}, []BulkUser{{UserID: "u1", Name: "A"}})
	if !errors.Is(err, ErrBulkInProgress) {
		t.Fatalf("expected ErrBulkInProgress, got %v", err)
	}
}

func TestCompareWithCRM(t *testing.T) {
	p := &fakeProvider{owned: []OwnedNumber{
		{SID: "PN1", PhoneNumber: "+15105550100"},
		{SID: "PN2", PhoneNumber: "+12025550100"},
	}}
	crm := &fakeAssignments{assignments: []Assignment{
		{PhoneNumber: "(510) 555-0100", LinkedUserID: "u1"},
	}}
	svc, _ := newTestService(p, crm)

	out, err := svc.CompareWithCRM(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Summary.Total != 2 || out.Summary.InCRM != 1 || out.Summary.NotInCRM != 1 {
		t.Fatalf("unexpected summary: %+v", out.Summary)
	}
	if !out.Numbers[0].InCRM || out.Numbers[0].Assignment.LinkedUserID != "u1" {
		t.Fatalf("expected normalized phone match, got %+v", out.Numbers[0])
	}
	if out.Numbers[1].InCRM {
		t.Fatalf("expected second number not in CRM")
	}
}

func TestSearchNumberForState_UnknownState(t *testing.T) {
	svc, _ := newTestService(&fakeProvider{}, &fakeAssignments{})
	_, err := svc.SearchNumberForState(context.Background(), "Atlantis")
	if !errors.Is(err, ErrUnknownState) {
		t.Fatalf("expected ErrUnknownState, got %v", err)
	}
}

func TestSearchNumberForState_FindsNumber(t *testing.T) {
	p := &fakeProvider{available: map[string][]AvailableNumber{
		"907": {{PhoneNumber: "+19075550100"}},
	}}
	svc, _ := newTestService(p, &fakeAssignments{})

	res, err := svc.SearchNumberForState(context.Background(), "Alaska")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.AreaCode != "907" || res.Number.PhoneNumber != "+19075550100" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSearchNumbersForStates_PartitionsOutcomes(t *testing.T) {
	p := &fakeProvider{available: map[string][]AvailableNumber{
		"907": {{PhoneNumber: "+19075550100"}},
	}}
	svc, _ := newTestService(p, &fakeAssignments{})

	out, err := svc.SearchNumbersForStates(context.Background(), []string{"Alaska", "Wyoming"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(out.Success) != 1 || len(out.Failed) != 1 {
		t.Fatalf("expected one success and one failure, got %+v", out)
	}
	if out.Failed[0].State != "Wyoming" {
		t.Fatalf("expected Wyoming to fail, got %+v", out.Failed)
	}
}
