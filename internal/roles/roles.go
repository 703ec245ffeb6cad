// Package roles gates engine pools on per-user role grants. Bans override
// grants: a banned user is never eligible regardless of the roles they hold.
package roles

import (
	"context"
	"fmt"

	"greenroom/internal/store"
)

// Gate answers eligibility questions and applies administrative role
// changes over the store's role rows.
type Gate struct {
	store *store.Store
}

// NewGate constructs a Gate over the given store.
func NewGate(st *store.Store) *Gate {
	return &Gate{store: st}
}

// IsEligible reports whether the user holds the role and is not banned.
func (g *Gate) IsEligible(ctx context.Context, userID int64, role string) (bool, error) {
	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load user: %w", err)
	}
	if user == nil || user.Banned {
		return false, nil
	}
	return g.store.HasRole(ctx, userID, role)
}

// Grant grants a role to a user.
func (g *Gate) Grant(ctx context.Context, userID int64, role string) error {
	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %d not found", userID)
	}
	return g.store.GrantRole(ctx, userID, role)
}

// Revoke removes a role from a user.
func (g *Gate) Revoke(ctx context.Context, userID int64, role string) error {
	return g.store.RevokeRole(ctx, userID, role)
}

// Eligible returns the non-banned users holding the role.
func (g *Gate) Eligible(ctx context.Context, role string) ([]*store.User, error) {
	return g.store.UsersWithRole(ctx, role)
}
