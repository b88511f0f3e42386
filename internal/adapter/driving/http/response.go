package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/B3hnamR/OutlineManager/internal/application"
	"github.com/B3hnamR/OutlineManager/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeText writes a plain-text response, used by the public subscription path.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// AddKeyRequest is the JSON body for the create endpoint. GB and Duration
// arrive as raw tokens and are validated by the lifecycle engine.
type AddKeyRequest struct {
	Name     string `json:"name"`
	GB       string `json:"gb"`
	Duration string `json:"duration"`
	OnHold   bool   `json:"on_hold"`
}

// AddKeyResponse reports a created key with its public subscription link.
type AddKeyResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
	Link   string `json:"link"`
	User   string `json:"user"`
}

// RenewRequest is the JSON body for the renew endpoint.
type RenewRequest struct {
	Token    string `json:"token"`
	GB       string `json:"gb"`
	Duration string `json:"duration"`
}

// RenewResponse reports the post-renewal expiry; null when the key remains
// on hold without a started clock.
type RenewResponse struct {
	Status    string  `json:"status"`
	NewExpiry *string `json:"new_expiry"`
}

// TokenRequest is the JSON body shared by suspend, unsuspend, and delete.
type TokenRequest struct {
	Token string `json:"token"`
}

// StatusResponse is a one-word confirmation body.
type StatusResponse struct {
	Status string `json:"status"`
}

// SweepResponse reports how many expired keys a sweep removed.
type SweepResponse struct {
	Deleted int `json:"deleted"`
}

// StatsResponse carries best-effort host utilization percentages.
type StatsResponse struct {
	CPU float64 `json:"cpu"`
	RAM float64 `json:"ram"`
}

// KeySummaryResponse is one row of the admin key listing.
type KeySummaryResponse struct {
	Name      string  `json:"name"`
	Token     string  `json:"token"`
	Expiry    *string `json:"expiry"`
	Remaining string  `json:"remaining"`
	Status    string  `json:"status"`
	UsedBytes int64   `json:"used_bytes"`
	Depleted  bool    `json:"is_depleted"`
	Expired   bool    `json:"is_expired"`
}

// toKeySummaryResponse converts an application KeySummary to its JSON shape.
func toKeySummaryResponse(s application.KeySummary) KeySummaryResponse {
	return KeySummaryResponse{
		Name:      s.Name,
		Token:     s.Token,
		Expiry:    formatExpiry(s.Expiry),
		Remaining: s.Remaining,
		Status:    string(s.Status),
		UsedBytes: s.UsedBytes,
		Depleted:  s.Depleted,
		Expired:   s.Expired,
	}
}

// formatExpiry renders an optional expiry in the store's canonical layout.
func formatExpiry(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.Format(model.TimeLayout)
	return &formatted
}
