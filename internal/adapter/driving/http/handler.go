// Package httphandler is the HTTP driving adapter serving the admin API and
// the public subscription path.
package httphandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/B3hnamR/OutlineManager/internal/application"
	"github.com/B3hnamR/OutlineManager/internal/domain/model"
	"github.com/B3hnamR/OutlineManager/internal/domain/port/driven"
)

// Handler is the HTTP driving adapter. Admin routes answer only to loopback
// callers; the subscription route is public.
type Handler struct {
	lifecycle *application.LifecycleService
	list      *application.ListService
	subs      *application.SubscriptionService
	stats     *application.StatsService
	deploy    application.DeploymentSource
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	lifecycle *application.LifecycleService,
	list *application.ListService,
	subs *application.SubscriptionService,
	stats *application.StatsService,
	deploy application.DeploymentSource,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		list:      list,
		subs:      subs,
		stats:     stats,
		deploy:    deploy,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware. The route shapes match what the
// operator console sends.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	admin := func(fn http.HandlerFunc) http.Handler { return requireLoopback(fn) }

	mux.Handle("POST /add", admin(h.AddKey))
	mux.Handle("POST /renew", admin(h.RenewKey))
	mux.Handle("GET /list_users", admin(h.ListKeys))
	mux.Handle("POST /suspend", admin(h.SuspendKey))
	mux.Handle("POST /unsuspend", admin(h.UnsuspendKey))
	mux.Handle("POST /clean_expired", admin(h.SweepExpired))
	mux.Handle("POST /delete_user", admin(h.DeleteKey))

	mux.HandleFunc("GET /server_stats", h.ServerStats)
	mux.HandleFunc("GET /getsub/{token}", h.GetSubscription)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// AddKey creates a new access key.
func (h *Handler) AddKey(w http.ResponseWriter, r *http.Request) {
	var req AddKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.lifecycle.Create(r.Context(), application.CreateParams{
		Name:     req.Name,
		GB:       req.GB,
		Duration: req.Duration,
		OnHold:   req.OnHold,
	})
	if err != nil {
		h.writeOperationError(w, "create", err, http.StatusInternalServerError)
		return
	}

	link := ""
	if dep, err := h.deploy.Deployment(); err != nil {
		h.logger.Error("deployment config unavailable for link", "error", err)
	} else {
		link = application.SubscriptionLink(dep, result.Token, result.Name)
	}

	writeJSON(w, http.StatusOK, AddKeyResponse{
		Status: "Created",
		Token:  result.Token,
		Link:   link,
		User:   result.Name,
	})
}

// RenewKey extends an access key's time and/or data budget.
func (h *Handler) RenewKey(w http.ResponseWriter, r *http.Request) {
	var req RenewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.lifecycle.Renew(r.Context(), application.RenewParams{
		Token:    req.Token,
		GB:       req.GB,
		Duration: req.Duration,
	})
	if err != nil {
		h.writeOperationError(w, "renew", err, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, RenewResponse{
		Status:    "Renewed",
		NewExpiry: formatExpiry(result.Expiry),
	})
}

// ListKeys returns the reconciled key listing.
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.list.List(r.Context())
	if err != nil {
		h.logger.Error("list keys failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]KeySummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		resp = append(resp, toKeySummaryResponse(s))
	}

	writeJSON(w, http.StatusOK, resp)
}

// SuspendKey suspends an access key.
func (h *Handler) SuspendKey(w http.ResponseWriter, r *http.Request) {
	token, ok := decodeTokenBody(w, r)
	if !ok {
		return
	}

	if err := h.lifecycle.Suspend(r.Context(), token); err != nil {
		h.writeOperationError(w, "suspend", err, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Status: "Suspended"})
}

// UnsuspendKey reactivates a suspended access key with its prior data limit.
func (h *Handler) UnsuspendKey(w http.ResponseWriter, r *http.Request) {
	token, ok := decodeTokenBody(w, r)
	if !ok {
		return
	}

	if err := h.lifecycle.Unsuspend(r.Context(), token); err != nil {
		h.writeOperationError(w, "unsuspend", err, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Status: "Active"})
}

// SweepExpired removes all lapsed active keys and reports how many went.
func (h *Handler) SweepExpired(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.lifecycle.SweepExpired(r.Context())
	if err != nil {
		h.logger.Error("sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, SweepResponse{Deleted: deleted})
}

// DeleteKey removes an access key remotely and locally.
func (h *Handler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	token, ok := decodeTokenBody(w, r)
	if !ok {
		return
	}

	if err := h.lifecycle.Delete(r.Context(), token); err != nil {
		h.writeOperationError(w, "delete", err, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Status: "Deleted"})
}

// ServerStats returns best-effort CPU and RAM utilization.
func (h *Handler) ServerStats(w http.ResponseWriter, _ *http.Request) {
	stats := h.stats.Stats()
	writeJSON(w, http.StatusOK, StatsResponse{CPU: stats.CPU, RAM: stats.RAM})
}

// GetSubscription is the public subscription path. All failure causes
// collapse into a small set of plain-text responses.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	result, err := h.subs.Resolve(r.Context(), token)
	if err != nil {
		h.logger.Error("subscription resolve failed", "error", err)
		writeText(w, http.StatusInternalServerError, "Server Error")
		return
	}

	switch result.Outcome {
	case application.ResolveOK:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(result.Body))
	case application.ResolveSuspended:
		writeText(w, http.StatusForbidden, "Account Suspended")
	case application.ResolveExpired:
		writeText(w, http.StatusForbidden, "Expired")
	case application.ResolveServerError:
		writeText(w, http.StatusBadGateway, "Server Error")
	case application.ResolveKeyNotFound:
		writeText(w, http.StatusNotFound, "Key Not Found")
	default:
		writeText(w, http.StatusNotFound, "Invalid Link")
	}
}

// decodeTokenBody reads the {"token": ...} request body shared by several
// admin operations.
func decodeTokenBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	return req.Token, true
}

// writeOperationError maps engine errors onto the admin wire contract:
// validation problems are 400, a missing key is 404, and a remote failure
// uses the operation's remote-error status (500 on create, 502 elsewhere).
func (h *Handler) writeOperationError(w http.ResponseWriter, op string, err error, remoteStatus int) {
	var remoteErr *driven.RemoteError

	switch {
	case errors.Is(err, model.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, "Invalid duration format")
	case errors.Is(err, model.ErrInvalidQuota):
		writeError(w, http.StatusBadRequest, "GB must be a number")
	case errors.Is(err, application.ErrNameRequired):
		writeError(w, http.StatusBadRequest, "Name required")
	case errors.Is(err, application.ErrTokenRequired):
		writeError(w, http.StatusBadRequest, "Empty Token")
	case errors.Is(err, driven.ErrKeyNotFound):
		writeError(w, http.StatusNotFound, "Not Found")
	case errors.As(err, &remoteErr):
		h.logger.Error("outline api error", "op", op, "error", err)
		if remoteStatus == http.StatusInternalServerError {
			writeError(w, remoteStatus, "Outline API Error")
		} else {
			writeError(w, remoteStatus, "API Error")
		}
	default:
		h.logger.Error("operation failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
