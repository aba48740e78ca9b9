package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"dialops/internal/audit"
)

type fakeCRM struct {
	users []StaffUser
	err   error
	calls int
}

func (f *fakeCRM) ListStaffUsers(context.Context) ([]StaffUser, error) {
	f.calls++
	return f.users, f.err
}

func TestUsersPrefersStore(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Upsert(context.Background(), StaffUser{CRMUserID: "u1", Name: "Ana Lee"}); err != nil {
		t.Fatal(err)
	}
	crm := &fakeCRM{users: []StaffUser{{CRMUserID: "u2", Name: "Live Only"}}}
	svc := NewService(store, crm, nil, nil)

	users, source, err := svc.Users(context.Background())
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if source != SourceDB {
		t.Errorf("source = %s, want db", source)
	}
	if len(users) != 1 || users[0].Name != "Ana Lee" {
		t.Errorf("users = %+v", users)
	}
	if crm.calls != 0 {
		t.Error("crm should not be called when the store has data")
	}
}

func TestUsersFallsBackToCRM(t *testing.T) {
	crm := &fakeCRM{users: []StaffUser{{CRMUserID: "u1", Name: "Ana Lee"}}}
	svc := NewService(NewMemoryStore(), crm, nil, nil)

	users, source, err := svc.Users(context.Background())
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if source != SourceCRM {
		t.Errorf("source = %s, want crm-api", source)
	}
	if len(users) != 1 {
		t.Errorf("users = %+v", users)
	}
}

func TestSyncUsersCountsAddedAndUpdated(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Upsert(context.Background(), StaffUser{CRMUserID: "u1", Name: "Old Name"}); err != nil {
		t.Fatal(err)
	}
	crm := &fakeCRM{users: []StaffUser{
		{CRMUserID: "u1", Name: "Ana Lee", Email: "ana@example.com"},
		{CRMUserID: "u2", Name: "Bo Chen"},
	}}
	repo := audit.NewMemoryRepo()
	svc := NewService(store, crm, audit.NewService(repo), nil)
	svc.clock = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

	res, err := svc.SyncUsers(context.Background(), audit.Actor{UserID: "admin1", Role: "admin"})
	if err != nil {
		t.Fatalf("SyncUsers: %v", err)
	}
	if res.FromAPI != 2 || res.Added != 1 || res.Updated != 1 {
		t.Errorf("result = %+v", res)
	}

	users, _, err := svc.Users(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Fatalf("store has %d users", len(users))
	}
	if users[0].Name != "Ana Lee" {
		t.Errorf("update not applied: %+v", users[0])
	}
	if users[0].SyncedAt.IsZero() {
		t.Error("SyncedAt not stamped")
	}

	events := repo.Events()
	if len(events) != 1 || events[0].Type != audit.EventTypeDirectorySynced {
		t.Errorf("audit events = %+v", events)
	}
}

func TestSyncUsersCRMFailure(t *testing.T) {
	crm := &fakeCRM{err: errors.New("crm down")}
	svc := NewService(NewMemoryStore(), crm, nil, nil)
	if _, err := svc.SyncUsers(context.Background(), audit.Actor{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestMemoryStoreOrdersByName(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, u := range []StaffUser{
		{CRMUserID: "u1", Name: "Zoe"},
		{CRMUserID: "u2", Name: "Ana"},
	} {
		if _, err := store.Upsert(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if users[0].Name != "Ana" || users[1].Name != "Zoe" {
		t.Errorf("order = %+v", users)
	}
}
