package outline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B3hnamR/OutlineManager/internal/domain/port/driven"
)

// newTestClient points a client at the given server and shrinks the retry
// waits so retry tests don't sleep for real.
func newTestClient(serverURL string) *Client {
	c := NewClient(func() (string, error) { return serverURL, nil })
	c.http.RetryWaitMin = time.Millisecond
	c.http.RetryWaitMax = time.Millisecond
	return c
}

func TestClient_CreateKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/access-keys", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":        "12",
			"name":      "",
			"accessUrl": "ss://Y2hhY2hhOnNlY3JldA@198.51.100.7:4321/?outline=1",
		})
	}))
	defer srv.Close()

	key, err := newTestClient(srv.URL).CreateKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "12", key.ID)
	assert.Equal(t, "ss://Y2hhY2hhOnNlY3JldA@198.51.100.7:4321/?outline=1", key.AccessURL)
	assert.Nil(t, key.DataLimit)
}

func TestClient_SetDataLimit_SendsPayload(t *testing.T) {
	var gotBody map[string]map[string]int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/access-keys/12/data-limit", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).SetDataLimit(context.Background(), "12", 5_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000_000), gotBody["limit"]["bytes"])
}

func TestClient_DeleteKey_NotFoundIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).DeleteKey(context.Background(), "12")
	assert.NoError(t, err, "deleting an already-absent key is idempotent success")
}

func TestClient_ClearDataLimit_NotFoundIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).ClearDataLimit(context.Background(), "12")
	require.Error(t, err)
	assert.True(t, driven.IsRemoteNotFound(err))
}

func TestClient_ErrorResponseNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreateKey(context.Background())
	require.Error(t, err)

	var remoteErr *driven.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, driven.RemoteFailed, remoteErr.Kind)
	assert.Equal(t, int32(1), calls.Load(), "a server response is final, not retried")
}

func TestClient_TransportFailureRetriedThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			// Drop the connection mid-request to simulate a transport failure.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"accessKeys": []any{}})
	}))
	defer srv.Close()

	keys, err := newTestClient(srv.URL).ListKeys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Equal(t, int32(3), calls.Load(), "third attempt should have succeeded")
}

func TestClient_TransportFailureExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ListKeys(context.Background())
	require.Error(t, err)

	var remoteErr *driven.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, driven.RemoteUnavailable, remoteErr.Kind)
	assert.Equal(t, int32(3), calls.Load(), "retry budget is exactly 3 attempts")
}

func TestClient_ListKeys_FlattensDataLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessKeys": []map[string]any{
				{"id": "1", "name": "alice", "accessUrl": "ss://a@h:1", "dataLimit": map[string]int64{"bytes": 1000}},
				{"id": "2", "name": "bob", "accessUrl": "ss://b@h:2"},
			},
		})
	}))
	defer srv.Close()

	keys, err := newTestClient(srv.URL).ListKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)

	require.NotNil(t, keys[0].DataLimit)
	assert.Equal(t, int64(1000), *keys[0].DataLimit)
	assert.Nil(t, keys[1].DataLimit)
}

func TestClient_TransferMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/metrics/transfer", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"bytesTransferredByUserId": map[string]int64{"1": 123456, "2": 0},
		})
	}))
	defer srv.Close()

	metrics, err := newTestClient(srv.URL).TransferMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(123456), metrics["1"])
}

func TestClient_BaseURLTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/secret/access-keys", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"accessKeys": []any{}})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL + "/secret/")
	_, err := client.ListKeys(context.Background())
	require.NoError(t, err)
}
