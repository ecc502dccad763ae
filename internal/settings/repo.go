// Package settings stores per-owner preferences, currently the ComicVine API key.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// ComicVineKey returns the owner's key, or "" when none is saved.
func (r *Repo) ComicVineKey(ctx context.Context, ownerID string) (string, error) {
	var key sql.NullString
	err := r.DB.QueryRowContext(ctx, `
		SELECT comicvine_api_key FROM user_settings WHERE user_id = ?
	`, ownerID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get comicvine key: %w", err)
	}
	return strings.TrimSpace(key.String), nil
}

// SetComicVineKey upserts the key; an empty key clears it.
func (r *Repo) SetComicVineKey(ctx context.Context, ownerID, key string) error {
	key = strings.TrimSpace(key)
	var arg any
	if key != "" {
		arg = key
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, comicvine_api_key)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			comicvine_api_key = excluded.comicvine_api_key
	`, ownerID, arg)
	if err != nil {
		return fmt.Errorf("set comicvine key: %w", err)
	}
	return nil
}
