package driven

import (
	"context"
	"errors"
	"fmt"

	"github.com/B3hnamR/OutlineManager/internal/domain/model"
)

// RemoteErrorKind classifies an Outline management API failure so callers
// can tell a dead server from a server that answered with an error.
type RemoteErrorKind int

const (
	// RemoteUnavailable means the transport failed on every retry attempt.
	RemoteUnavailable RemoteErrorKind = iota
	// RemoteFailed means the server answered with a non-2xx status.
	RemoteFailed
	// RemoteNotFound means the server answered 404 for the resource.
	RemoteNotFound
)

// RemoteError is the failure result of an Outline management API call.
type RemoteError struct {
	Kind RemoteErrorKind
	Op   string
	Err  error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("outline %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsRemoteNotFound reports whether err is a RemoteError of kind RemoteNotFound.
func IsRemoteNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == RemoteNotFound
}

// OutlineClient defines the driven port for the Outline server's management
// API. Every call is synchronous and retries transport failures internally
// with a bounded budget before surfacing a RemoteError.
type OutlineClient interface {
	CreateKey(ctx context.Context) (*model.RemoteKey, error)
	SetKeyName(ctx context.Context, keyID, name string) error
	SetDataLimit(ctx context.Context, keyID string, bytes int64) error
	ClearDataLimit(ctx context.Context, keyID string) error

	// DeleteKey removes the key server-side. A key that is already absent
	// counts as success: delete is idempotent.
	DeleteKey(ctx context.Context, keyID string) error

	ListKeys(ctx context.Context) ([]model.RemoteKey, error)

	// TransferMetrics returns cumulative transferred bytes per key ID.
	TransferMetrics(ctx context.Context) (map[string]int64, error)
}
