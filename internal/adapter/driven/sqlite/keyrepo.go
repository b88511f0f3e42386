package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/B3hnamR/OutlineManager/internal/domain/model"
	"github.com/B3hnamR/OutlineManager/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.KeyStore = (*KeyRepo)(nil)

// KeyRepo is the SQLite implementation of the KeyStore port interface.
type KeyRepo struct {
	db *DB
}

// NewKeyRepo creates a new KeyRepo backed by the given DB.
func NewKeyRepo(db *DB) *KeyRepo {
	return &KeyRepo{db: db}
}

// Insert adds a new access key row. Returns ErrTokenExists if the token is
// already taken.
func (r *KeyRepo) Insert(ctx context.Context, key model.AccessKey) error {
	const query = `INSERT INTO access_keys (token, key_id, name, expiry_date, status, data_limit, initial_duration)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Writer.ExecContext(ctx, query,
		key.Token, key.KeyID, key.Name, formatExpiry(key.Expiry),
		string(key.Status), key.DataLimit, key.InitialDuration,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("insert access key %s: %w", key.Token, driven.ErrTokenExists)
		}
		return fmt.Errorf("insert access key %s: %w", key.Token, err)
	}

	return nil
}

// GetByToken retrieves an access key by its public token. Returns nil, nil
// if no key matches.
func (r *KeyRepo) GetByToken(ctx context.Context, token string) (*model.AccessKey, error) {
	const query = `SELECT token, key_id, name, expiry_date, status, data_limit, initial_duration
		FROM access_keys WHERE token = ?`

	key, err := scanAccessKey(r.db.Reader.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get access key by token: %w", err)
	}

	return key, nil
}

// GetByKeyID retrieves an access key by its Outline-assigned key ID.
// Returns nil, nil if no key matches.
func (r *KeyRepo) GetByKeyID(ctx context.Context, keyID string) (*model.AccessKey, error) {
	const query = `SELECT token, key_id, name, expiry_date, status, data_limit, initial_duration
		FROM access_keys WHERE key_id = ?`

	key, err := scanAccessKey(r.db.Reader.QueryRowContext(ctx, query, keyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get access key by key id %s: %w", keyID, err)
	}

	return key, nil
}

// ListAll returns every access key ordered by name.
func (r *KeyRepo) ListAll(ctx context.Context) ([]model.AccessKey, error) {
	const query = `SELECT token, key_id, name, expiry_date, status, data_limit, initial_duration
		FROM access_keys ORDER BY name, token`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list access keys: %w", err)
	}
	defer rows.Close()

	var keys []model.AccessKey
	for rows.Next() {
		key, err := scanAccessKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access key: %w", err)
		}
		keys = append(keys, *key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access keys: %w", err)
	}

	return keys, nil
}

// UpdateRenewal writes the post-renewal expiry and data limit and sets the
// key active. Returns ErrKeyNotFound if no row matches the token.
func (r *KeyRepo) UpdateRenewal(ctx context.Context, token string, expiry *time.Time, dataLimit int64) error {
	const query = `UPDATE access_keys SET expiry_date = ?, data_limit = ?, status = 'active' WHERE token = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, formatExpiry(expiry), dataLimit, token)
	if err != nil {
		return fmt.Errorf("update renewal for %s: %w", token, err)
	}

	return requireRowAffected(result, token)
}

// UpdateStatus sets the stored status for the given token. Returns
// ErrKeyNotFound if no row matches.
func (r *KeyRepo) UpdateStatus(ctx context.Context, token string, status model.KeyStatus) error {
	const query = `UPDATE access_keys SET status = ? WHERE token = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, string(status), token)
	if err != nil {
		return fmt.Errorf("update status for %s: %w", token, err)
	}

	return requireRowAffected(result, token)
}

// ActivateBatch flips on-hold keys to active with their computed expiry.
// All activations commit in one transaction so a partially applied batch can
// never be observed by the surrounding list read.
func (r *KeyRepo) ActivateBatch(ctx context.Context, activations []model.Activation) error {
	if len(activations) == 0 {
		return nil
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activation batch: %w", err)
	}
	defer tx.Rollback()

	const query = `UPDATE access_keys SET status = 'active', expiry_date = ? WHERE token = ?`
	for _, a := range activations {
		if _, err := tx.ExecContext(ctx, query, a.Expiry.Format(model.TimeLayout), a.Token); err != nil {
			return fmt.Errorf("activate %s: %w", a.Token, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activation batch: %w", err)
	}

	return nil
}

// DeleteByToken removes the access key row for the given token. Returns
// ErrKeyNotFound if no row matches.
func (r *KeyRepo) DeleteByToken(ctx context.Context, token string) error {
	const query = `DELETE FROM access_keys WHERE token = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, token)
	if err != nil {
		return fmt.Errorf("delete access key %s: %w", token, err)
	}

	return requireRowAffected(result, token)
}

// DeleteByKeyID removes the access key row holding the given Outline key ID.
// Returns ErrKeyNotFound if no row matches.
func (r *KeyRepo) DeleteByKeyID(ctx context.Context, keyID string) error {
	const query = `DELETE FROM access_keys WHERE key_id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, keyID)
	if err != nil {
		return fmt.Errorf("delete access key by key id %s: %w", keyID, err)
	}

	return requireRowAffected(result, keyID)
}

// requireRowAffected maps a zero-row mutation to ErrKeyNotFound.
func requireRowAffected(result sql.Result, ident string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("access key %s: %w", ident, driven.ErrKeyNotFound)
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccessKey(s scanner) (*model.AccessKey, error) {
	var key model.AccessKey
	var status string
	var expiry sql.NullString

	err := s.Scan(&key.Token, &key.KeyID, &key.Name, &expiry, &status, &key.DataLimit, &key.InitialDuration)
	if err != nil {
		return nil, err
	}

	key.Status = model.KeyStatus(status)

	if expiry.Valid && expiry.String != "" {
		t, err := parseTime(expiry.String)
		if err != nil {
			return nil, fmt.Errorf("parse expiry_date: %w", err)
		}
		key.Expiry = &t
	}

	return &key, nil
}

// formatExpiry renders an optional expiry for storage; nil stays NULL so the
// on_hold invariant (no expiry at rest) holds in the schema too.
func formatExpiry(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(model.TimeLayout)
}

// parseTime tries the canonical layout first, then the formats SQLite tends
// to hand back.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		model.TimeLayout,
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05",
		time.RFC3339,
	}

	for _, format := range formats {
		if t, err := time.ParseInLocation(format, s, time.Local); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
