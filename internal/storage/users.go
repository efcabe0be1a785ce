package storage

import (
	"context"
	"fmt"
	"time"
)

// User is a row of the users table.
type User struct {
	ID          int       `json:"id"`
	Login       string    `json:"login"`
	DisplayName string    `json:"display_name"`
	Age         *int      `json:"age,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// GetOrCreateUser finds or creates a user by Tailscale login name.
// Returns the user ID. Updates last_seen and display_name on each call.
func (db *DB) GetOrCreateUser(ctx context.Context, login, displayName string) (int, error) {
	var id int
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO users (login, display_name)
		VALUES ($1, $2)
		ON CONFLICT (login) DO UPDATE
			SET last_seen = NOW(), display_name = COALESCE(NULLIF($2, ''), users.display_name)
		RETURNING id
	`, login, displayName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting user %q: %w", login, err)
	}
	return id, nil
}

// GetUser returns the user with id.
func (db *DB) GetUser(ctx context.Context, id int) (*User, error) {
	var u User
	err := db.Pool.QueryRow(ctx,
		`SELECT id, login, display_name, age, created_at, last_seen FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Login, &u.DisplayName, &u.Age, &u.CreatedAt, &u.LastSeen)
	if err != nil {
		return nil, fmt.Errorf("querying user %d: %w", id, notFound(err))
	}
	return &u, nil
}

// UpdateUserProfile sets the display name and age. An empty name keeps the
// current one; a nil age clears it.
func (db *DB) UpdateUserProfile(ctx context.Context, id int, displayName string, age *int) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE users
		SET display_name = COALESCE(NULLIF($2, ''), display_name), age = $3
		WHERE id = $1
	`, id, displayName, age)
	if err != nil {
		return fmt.Errorf("updating user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating user %d: %w", id, ErrNotFound)
	}
	return nil
}
