package driven

import (
	"context"
	"errors"
	"time"

	"github.com/B3hnamR/OutlineManager/internal/domain/model"
)

// Sentinel errors returned by KeyStore implementations.
var (
	// ErrKeyNotFound indicates no access key exists for the given token or key ID.
	ErrKeyNotFound = errors.New("access key not found")

	// ErrTokenExists indicates an access key with the same token already exists.
	ErrTokenExists = errors.New("token already exists")
)

// KeyStore defines the driven port for access key persistence.
// Single-row getters return (nil, nil) when no row matches; mutating
// operations return ErrKeyNotFound when the target row does not exist.
type KeyStore interface {
	Insert(ctx context.Context, key model.AccessKey) error
	GetByToken(ctx context.Context, token string) (*model.AccessKey, error)
	GetByKeyID(ctx context.Context, keyID string) (*model.AccessKey, error)
	ListAll(ctx context.Context) ([]model.AccessKey, error)

	// UpdateRenewal writes the post-renewal expiry and data limit and always
	// sets the key back to active, which is what lets a renewal revive a
	// suspended key. expiry may be nil for an on-hold key renewed without a
	// duration extension.
	UpdateRenewal(ctx context.Context, token string, expiry *time.Time, dataLimit int64) error

	UpdateStatus(ctx context.Context, token string, status model.KeyStatus) error

	// ActivateBatch flips on-hold keys to active with their computed expiry
	// in a single transaction.
	ActivateBatch(ctx context.Context, activations []model.Activation) error

	DeleteByToken(ctx context.Context, token string) error
	DeleteByKeyID(ctx context.Context, keyID string) error
}
