// Package outline implements the OutlineClient port against the Outline
// server's management REST API using hashicorp/go-retryablehttp.
package outline

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/B3hnamR/OutlineManager/internal/domain/model"
	"github.com/B3hnamR/OutlineManager/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.OutlineClient = (*Client)(nil)

// BaseURLFunc supplies the management API base URL per call, so a config
// reload takes effect without rebuilding the client.
type BaseURLFunc func() (string, error)

// Client implements the driven.OutlineClient port. Every request gets up to
// 3 attempts with a fixed 1-second wait between them; only transport-level
// failures are retried, a response from the server is final whatever its
// status. Outline serves its management API with a self-signed certificate,
// so certificate verification is disabled on this transport.
type Client struct {
	baseURL BaseURLFunc
	http    *retryablehttp.Client
}

// NewClient creates a management API client resolving its base URL through
// baseURL on every call.
func NewClient(baseURL BaseURLFunc) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = time.Second
	rc.RetryWaitMax = time.Second
	rc.Logger = nil
	rc.HTTPClient = &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // Outline uses a self-signed cert on an internal network.
		},
	}
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// A response, even an error response, is final. Only transport
		// failures (timeout, refused connection, TLS) are retried.
		return err != nil, nil
	}

	return &Client{
		baseURL: baseURL,
		http:    rc,
	}
}

// keyJSON is the wire representation of an access key.
type keyJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AccessURL string `json:"accessUrl"`
	DataLimit *struct {
		Bytes int64 `json:"bytes"`
	} `json:"dataLimit"`
}

func (k keyJSON) toModel() model.RemoteKey {
	remote := model.RemoteKey{
		ID:        k.ID,
		Name:      k.Name,
		AccessURL: k.AccessURL,
	}
	if k.DataLimit != nil {
		limit := k.DataLimit.Bytes
		remote.DataLimit = &limit
	}
	return remote
}

// CreateKey provisions a new access key on the Outline server.
func (c *Client) CreateKey(ctx context.Context) (*model.RemoteKey, error) {
	body, err := c.do(ctx, http.MethodPost, "access-keys", nil)
	if err != nil {
		return nil, err
	}

	var key keyJSON
	if err := json.Unmarshal(body, &key); err != nil {
		return nil, &driven.RemoteError{Kind: driven.RemoteFailed, Op: "create key", Err: fmt.Errorf("decode response: %w", err)}
	}

	remote := key.toModel()
	return &remote, nil
}

// SetKeyName sets the display name on the remote key.
func (c *Client) SetKeyName(ctx context.Context, keyID, name string) error {
	payload := map[string]string{"name": name}
	_, err := c.do(ctx, http.MethodPut, "access-keys/"+keyID+"/name", payload)
	return err
}

// SetDataLimit enforces a byte limit on the remote key.
func (c *Client) SetDataLimit(ctx context.Context, keyID string, bytes int64) error {
	payload := map[string]map[string]int64{"limit": {"bytes": bytes}}
	_, err := c.do(ctx, http.MethodPut, "access-keys/"+keyID+"/data-limit", payload)
	return err
}

// ClearDataLimit removes any byte limit from the remote key.
func (c *Client) ClearDataLimit(ctx context.Context, keyID string) error {
	_, err := c.do(ctx, http.MethodDelete, "access-keys/"+keyID+"/data-limit", nil)
	return err
}

// DeleteKey removes the key from the Outline server. A 404 counts as
// success; a key that is already gone is exactly the state we want.
func (c *Client) DeleteKey(ctx context.Context, keyID string) error {
	_, err := c.do(ctx, http.MethodDelete, "access-keys/"+keyID, nil)
	if driven.IsRemoteNotFound(err) {
		return nil
	}
	return err
}

// ListKeys returns every access key known to the Outline server.
func (c *Client) ListKeys(ctx context.Context) ([]model.RemoteKey, error) {
	body, err := c.do(ctx, http.MethodGet, "access-keys", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		AccessKeys []keyJSON `json:"accessKeys"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &driven.RemoteError{Kind: driven.RemoteFailed, Op: "list keys", Err: fmt.Errorf("decode response: %w", err)}
	}

	keys := make([]model.RemoteKey, 0, len(resp.AccessKeys))
	for _, k := range resp.AccessKeys {
		keys = append(keys, k.toModel())
	}

	return keys, nil
}

// TransferMetrics returns cumulative transferred bytes per key ID.
func (c *Client) TransferMetrics(ctx context.Context) (map[string]int64, error) {
	body, err := c.do(ctx, http.MethodGet, "metrics/transfer", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		BytesTransferredByUserID map[string]int64 `json:"bytesTransferredByUserId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &driven.RemoteError{Kind: driven.RemoteFailed, Op: "transfer metrics", Err: fmt.Errorf("decode response: %w", err)}
	}

	if resp.BytesTransferredByUserID == nil {
		return map[string]int64{}, nil
	}

	return resp.BytesTransferredByUserID, nil
}

// do executes one management API call and classifies the outcome: a 2xx body
// is returned as-is, 404 becomes RemoteNotFound, any other status becomes
// RemoteFailed, and transport failure after the retry budget becomes
// RemoteUnavailable.
func (c *Client) do(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	op := method + " " + endpoint

	base, err := c.baseURL()
	if err != nil {
		return nil, &driven.RemoteError{Kind: driven.RemoteUnavailable, Op: op, Err: err}
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &driven.RemoteError{Kind: driven.RemoteFailed, Op: op, Err: fmt.Errorf("encode payload: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	url := strings.TrimRight(base, "/") + "/" + endpoint
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &driven.RemoteError{Kind: driven.RemoteFailed, Op: op, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &driven.RemoteError{Kind: driven.RemoteUnavailable, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &driven.RemoteError{Kind: driven.RemoteUnavailable, Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, &driven.RemoteError{Kind: driven.RemoteNotFound, Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return nil, &driven.RemoteError{Kind: driven.RemoteFailed, Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
}
