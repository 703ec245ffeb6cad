package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateUser inserts a new participant with neutral starting ratings.
func (s *Store) CreateUser(ctx context.Context, handle, displayName string) (*User, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, errors.New("handle is empty")
	}
	now := formatTime(time.Now())

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO users (handle, display_name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		handle,
		displayName,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetUser(ctx, id)
}

// GetUser fetches a user by identifier. Returns (nil, nil) when absent.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetUserByHandle fetches a user by contact handle. Returns (nil, nil) when
// absent.
func (s *Store) GetUserByHandle(ctx context.Context, handle string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE handle = ?`, strings.TrimSpace(handle))
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by handle: %w", err)
	}
	return user, nil
}

// ListUsers returns all users ordered by identifier.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// SetBanned updates a user's banned flag.
func (s *Store) SetBanned(ctx context.Context, id int64, banned bool) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE users SET banned = ?, updated_at = ? WHERE id = ?`,
		boolToInt(banned),
		formatTime(time.Now()),
		id,
	); err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	return nil
}

// UpdateProducerScore persists a recomputed producer rating and points.
// Points only ever increase; a lower recomputed value leaves the stored
// points untouched.
func (s *Store) UpdateProducerScore(ctx context.Context, id int64, rating, points float64) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE users SET producer_rating = ?, producer_points = MAX(producer_points, ?), updated_at = ? WHERE id = ?`,
		rating,
		points,
		formatTime(time.Now()),
		id,
	); err != nil {
		return fmt.Errorf("update producer score: %w", err)
	}
	return nil
}

// UpdateReviewerScore persists a recomputed reviewer rating and points.
func (s *Store) UpdateReviewerScore(ctx context.Context, id int64, rating, points float64) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE users SET reviewer_rating = ?, reviewer_points = MAX(reviewer_points, ?), updated_at = ? WHERE id = ?`,
		rating,
		points,
		formatTime(time.Now()),
		id,
	); err != nil {
		return fmt.Errorf("update reviewer score: %w", err)
	}
	return nil
}

// GrantRole grants a role to a user. Granting an already-held role is a
// no-op.
func (s *Store) GrantRole(ctx context.Context, userID int64, role string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT OR IGNORE INTO roles (user_id, role, granted_at) VALUES (?, ?, ?)`,
		userID,
		role,
		formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

// RevokeRole removes a role from a user.
func (s *Store) RevokeRole(ctx context.Context, userID int64, role string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`DELETE FROM roles WHERE user_id = ? AND role = ?`,
		userID,
		role,
	); err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	return nil
}

// HasRole reports whether a user holds a role.
func (s *Store) HasRole(ctx context.Context, userID int64, role string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM roles WHERE user_id = ? AND role = ?`,
		userID,
		role,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check role: %w", err)
	}
	return count > 0, nil
}

// UsersWithRole returns non-banned users holding a role, ordered by
// identifier.
func (s *Store) UsersWithRole(ctx context.Context, role string) ([]*User, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+userColumnsPrefixed("u")+`
         FROM users u JOIN roles r ON r.user_id = u.id
         WHERE r.role = ? AND u.banned = 0
         ORDER BY u.id`,
		role,
	)
	if err != nil {
		return nil, fmt.Errorf("users with role: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func userColumnsPrefixed(alias string) string {
	cols := strings.Split(userColumns, ", ")
	for i, col := range cols {
		cols[i] = alias + "." + col
	}
	return strings.Join(cols, ", ")
}
