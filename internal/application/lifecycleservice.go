// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-secure-stdlib/base62"

	"github.com/B3hnamR/OutlineManager/internal/domain/model"
	"github.com/B3hnamR/OutlineManager/internal/domain/port/driven"
)

// Validation errors rejected before any remote call is attempted.
var (
	ErrNameRequired  = errors.New("name is required")
	ErrTokenRequired = errors.New("token is required")
)

// tokenLength is the length of generated subscription tokens.
const tokenLength = 10

// LifecycleService implements the access key state machine: create, renew,
// suspend, unsuspend, delete, and the expiry sweep. Every mutating operation
// calls the Outline server first and touches the local store only after the
// remote call succeeded, so the store can never claim a grant that does not
// exist remotely. The converse drift (remote applied, local write failed) is
// a known, uncompensated limitation.
type LifecycleService struct {
	keys    driven.KeyStore
	outline driven.OutlineClient

	now      func() time.Time
	newToken func() (string, error)
}

// NewLifecycleService creates a LifecycleService with the given store and
// Outline client.
func NewLifecycleService(keys driven.KeyStore, outline driven.OutlineClient) *LifecycleService {
	return &LifecycleService{
		keys:     keys,
		outline:  outline,
		now:      time.Now,
		newToken: func() (string, error) { return base62.Random(tokenLength) },
	}
}

// CreateParams are the caller-supplied inputs for Create. GB and Duration
// are raw tokens and validated here.
type CreateParams struct {
	Name     string
	GB       string
	Duration string
	OnHold   bool
}

// CreateResult reports a freshly created access key.
type CreateResult struct {
	Token  string
	Name   string
	Status model.KeyStatus
	Expiry *time.Time
}

// Create provisions a remote key and inserts the local row. Validation
// happens up front; the row is only written after the remote key exists.
// Failures configuring the created key (name, data limit) are logged and
// tolerated: the key stays usable and no rollback is attempted.
func (s *LifecycleService) Create(ctx context.Context, p CreateParams) (*CreateResult, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, ErrNameRequired
	}

	limitBytes, err := model.ComputeQuotaBytes(p.GB)
	if err != nil {
		return nil, err
	}

	// The duration token must be well-formed even for an on-hold key, since
	// activation will compute the real expiry from it later.
	computedExpiry, err := model.ComputeExpiry(p.Duration, s.now())
	if err != nil {
		return nil, err
	}

	status := model.StatusActive
	var expiry *time.Time
	if p.OnHold {
		status = model.StatusOnHold
	} else {
		expiry = &computedExpiry
	}

	remote, err := s.outline.CreateKey(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.outline.SetKeyName(ctx, remote.ID, p.Name); err != nil {
		slog.Warn("set key name failed after create", "key_id", remote.ID, "error", err)
	}
	if limitBytes > 0 {
		if err := s.outline.SetDataLimit(ctx, remote.ID, limitBytes); err != nil {
			slog.Warn("set data limit failed after create", "key_id", remote.ID, "error", err)
		}
	}

	token, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	key := model.AccessKey{
		Token:           token,
		KeyID:           remote.ID,
		Name:            p.Name,
		Expiry:          expiry,
		Status:          status,
		DataLimit:       limitBytes,
		InitialDuration: p.Duration,
	}
	if err := s.keys.Insert(ctx, key); err != nil {
		return nil, err
	}

	slog.Info("access key created",
		"token", token,
		"key_id", remote.ID,
		"status", string(status),
		"data_limit", limitBytes,
	)

	return &CreateResult{
		Token:  token,
		Name:   p.Name,
		Status: status,
		Expiry: expiry,
	}, nil
}

// RenewParams are the caller-supplied inputs for Renew. Empty GB or Duration
// means "leave that budget alone".
type RenewParams struct {
	Token    string
	GB       string
	Duration string
}

// RenewResult reports the post-renewal expiry; nil means the key is still on
// hold with no expiry set.
type RenewResult struct {
	Expiry *time.Time
}

// Renew extends a key's time and/or data budget and always leaves it active,
// which is also how a suspended key is revived.
//
// Base-time rule: an on-hold key, a key without expiry, or an unlimited key
// extends from now; otherwise from the later of (current expiry, now), so a
// lapsed-but-unswept key restarts from now instead of compounding onto a
// stale timestamp.
//
// Quota rule: "0" resets to unlimited; otherwise the requested bytes add to
// a bounded quota or replace an unlimited one outright.
func (s *LifecycleService) Renew(ctx context.Context, p RenewParams) (*RenewResult, error) {
	key, err := s.keys.GetByToken(ctx, p.Token)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, driven.ErrKeyNotFound
	}

	newExpiry := key.Expiry
	if strings.TrimSpace(p.Duration) != "" {
		now := s.now()

		base := now
		if key.Status != model.StatusOnHold && key.Expiry != nil && !model.IsUnlimitedExpiry(*key.Expiry) {
			if key.Expiry.After(now) {
				base = *key.Expiry
			}
		}

		computed, err := model.ComputeExpiry(p.Duration, base)
		if err != nil {
			return nil, err
		}
		newExpiry = &computed
	}

	newLimit := key.DataLimit
	limitChanged := false
	if trimmed := strings.TrimSpace(p.GB); trimmed != "" {
		bytesToAdd, err := model.ComputeQuotaBytes(trimmed)
		if err != nil {
			return nil, err
		}

		switch {
		case bytesToAdd == 0:
			newLimit = 0
		case key.DataLimit == 0:
			// Going from unlimited to bounded starts fresh at the
			// requested amount.
			newLimit = bytesToAdd
		default:
			newLimit = key.DataLimit + bytesToAdd
		}
		limitChanged = true
	}

	if limitChanged {
		if newLimit == 0 {
			err = s.outline.ClearDataLimit(ctx, key.KeyID)
		} else {
			err = s.outline.SetDataLimit(ctx, key.KeyID, newLimit)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := s.keys.UpdateRenewal(ctx, p.Token, newExpiry, newLimit); err != nil {
		return nil, err
	}

	slog.Info("access key renewed", "token", p.Token, "data_limit", newLimit)

	return &RenewResult{Expiry: newExpiry}, nil
}

// Suspend cuts a key off by forcing a 1-byte data limit remotely, then marks
// it suspended locally.
func (s *LifecycleService) Suspend(ctx context.Context, token string) error {
	key, err := s.keys.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	if key == nil {
		return driven.ErrKeyNotFound
	}

	if err := s.outline.SetDataLimit(ctx, key.KeyID, 1); err != nil {
		return err
	}

	if err := s.keys.UpdateStatus(ctx, token, model.StatusSuspended); err != nil {
		return err
	}

	slog.Info("access key suspended", "token", token)
	return nil
}

// Unsuspend restores the key's intended data limit (clearing it when the
// stored quota is unlimited) and marks it active again.
func (s *LifecycleService) Unsuspend(ctx context.Context, token string) error {
	key, err := s.keys.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	if key == nil {
		return driven.ErrKeyNotFound
	}

	if key.DataLimit == 0 {
		err = s.outline.ClearDataLimit(ctx, key.KeyID)
	} else {
		err = s.outline.SetDataLimit(ctx, key.KeyID, key.DataLimit)
	}
	if err != nil {
		return err
	}

	if err := s.keys.UpdateStatus(ctx, token, model.StatusActive); err != nil {
		return err
	}

	slog.Info("access key unsuspended", "token", token)
	return nil
}

// Delete removes a key remotely and then locally. A key already gone from
// the Outline server still deletes cleanly (the client treats remote 404 as
// success).
func (s *LifecycleService) Delete(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrTokenRequired
	}

	key, err := s.keys.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	if key == nil {
		return driven.ErrKeyNotFound
	}

	if err := s.outline.DeleteKey(ctx, key.KeyID); err != nil {
		return err
	}

	if err := s.keys.DeleteByToken(ctx, token); err != nil {
		return err
	}

	slog.Info("access key deleted", "token", token, "key_id", key.KeyID)
	return nil
}

// SweepExpired removes every active key whose expiry has passed. On-hold and
// suspended keys are never swept regardless of age. Each removal follows the
// remote-first discipline; failures skip the key and the sweep moves on.
func (s *LifecycleService) SweepExpired(ctx context.Context) (int, error) {
	keys, err := s.keys.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	deleted := 0

	for _, key := range keys {
		if !key.IsExpired(now) {
			continue
		}

		// Re-read by key ID: a renewal may have landed since the snapshot.
		current, err := s.keys.GetByKeyID(ctx, key.KeyID)
		if err != nil {
			slog.Error("sweep re-read failed", "key_id", key.KeyID, "error", err)
			continue
		}
		if current == nil || !current.IsExpired(now) {
			continue
		}

		if err := s.outline.DeleteKey(ctx, key.KeyID); err != nil {
			slog.Error("sweep remote delete failed", "key_id", key.KeyID, "error", err)
			continue
		}

		if err := s.keys.DeleteByKeyID(ctx, key.KeyID); err != nil {
			slog.Error("sweep local delete failed", "key_id", key.KeyID, "error", err)
			continue
		}

		deleted++
		slog.Info("expired access key swept", "token", key.Token, "key_id", key.KeyID)
	}

	return deleted, nil
}
