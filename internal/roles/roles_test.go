package roles_test

import (
	"context"
	"testing"

	"greenroom/internal/roles"
	"greenroom/internal/store"
	"greenroom/internal/testsupport"
)

func TestIsEligibleRequiresRole(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	gate := roles.NewGate(st)
	ctx := context.Background()

	user, err := st.CreateUser(ctx, "norole", "No Role")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	eligible, err := gate.IsEligible(ctx, user.ID, store.RoleProducer)
	if err != nil {
		t.Fatalf("IsEligible failed: %v", err)
	}
	if eligible {
		t.Fatal("expected ineligible without role")
	}

	if err := gate.Grant(ctx, user.ID, store.RoleProducer); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	eligible, err = gate.IsEligible(ctx, user.ID, store.RoleProducer)
	if err != nil {
		t.Fatalf("IsEligible failed: %v", err)
	}
	if !eligible {
		t.Fatal("expected eligible after grant")
	}
}

func TestBanOverridesGrant(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	gate := roles.NewGate(st)
	ctx := context.Background()

	user := testsupport.NewProducer(t, st, "banned")
	if err := st.SetBanned(ctx, user.ID, true); err != nil {
		t.Fatalf("SetBanned failed: %v", err)
	}

	eligible, err := gate.IsEligible(ctx, user.ID, store.RoleProducer)
	if err != nil {
		t.Fatalf("IsEligible failed: %v", err)
	}
	if eligible {
		t.Fatal("expected banned user ineligible despite role")
	}
}

func TestGrantUnknownUserFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	gate := roles.NewGate(st)

	if err := gate.Grant(context.Background(), 12345, store.RoleReviewer); err == nil {
		t.Fatal("expected error granting role to unknown user")
	}
}

func TestRevokeRestoresPool(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	gate := roles.NewGate(st)
	ctx := context.Background()

	user := testsupport.NewReviewer(t, st, "rev")
	pool, err := gate.Eligible(ctx, store.RoleReviewer)
	if err != nil {
		t.Fatalf("Eligible failed: %v", err)
	}
	if len(pool) != 1 {
		t.Fatalf("expected one reviewer, got %d", len(pool))
	}

	if err := gate.Revoke(ctx, user.ID, store.RoleReviewer); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	pool, err = gate.Eligible(ctx, store.RoleReviewer)
	if err != nil {
		t.Fatalf("Eligible failed: %v", err)
	}
	if len(pool) != 0 {
		t.Fatalf("expected empty pool after revoke, got %d", len(pool))
	}
}
