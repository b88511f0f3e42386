package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/B3hnamR/OutlineManager/internal/domain/model"
	"github.com/B3hnamR/OutlineManager/internal/domain/port/driven"
)

// KeySummary is the reconciled admin view of one access key: local intent
// merged with the Outline server's live limit and usage numbers.
type KeySummary struct {
	Name      string
	Token     string
	Expiry    *time.Time
	Remaining string
	Status    model.KeyStatus
	UsedBytes int64
	Depleted  bool
	Expired   bool
}

// ListService assembles the admin key listing. Usage is whatever the Outline
// server last reported; the local store stays authoritative for status and
// intended budgets.
type ListService struct {
	keys    driven.KeyStore
	outline driven.OutlineClient

	now func() time.Time
}

// NewListService creates a ListService with the given store and Outline client.
func NewListService(keys driven.KeyStore, outline driven.OutlineClient) *ListService {
	return &ListService{
		keys:    keys,
		outline: outline,
		now:     time.Now,
	}
}

// List returns a summary per stored key. As a side effect it starts the time
// budget of any on-hold key that has seen traffic: its expiry is computed
// from the stored initial duration based now, and all such activations are
// persisted atomically as one batch. When the Outline server cannot be
// reached at all the listing is empty rather than failing — there is nothing
// trustworthy to show.
func (s *ListService) List(ctx context.Context) ([]KeySummary, error) {
	stored, err := s.keys.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	remoteKeys, err := s.outline.ListKeys(ctx)
	if err != nil {
		slog.Error("list keys from outline failed", "error", err)
		return []KeySummary{}, nil
	}

	usage := map[string]int64{}
	if metrics, err := s.outline.TransferMetrics(ctx); err != nil {
		slog.Warn("transfer metrics unavailable", "error", err)
	} else {
		usage = metrics
	}

	limits := make(map[string]*int64, len(remoteKeys))
	for _, rk := range remoteKeys {
		limits[rk.ID] = rk.DataLimit
	}

	now := s.now()
	summaries := make([]KeySummary, 0, len(stored))
	var activations []model.Activation

	for _, key := range stored {
		used := usage[key.KeyID]

		// The live limit wins for display; fall back to the stored quota
		// for keys the server no longer lists.
		var limit int64
		if remoteLimit, ok := limits[key.KeyID]; ok {
			if remoteLimit != nil {
				limit = *remoteLimit
			}
		} else {
			limit = key.DataLimit
		}

		status := key.Status
		expiry := key.Expiry

		if status == model.StatusOnHold && used > 0 {
			computed, err := model.ComputeExpiry(key.InitialDuration, now)
			if err != nil {
				slog.Error("activation skipped: stored duration invalid",
					"token", key.Token, "duration", key.InitialDuration)
			} else {
				status = model.StatusActive
				expiry = &computed
				activations = append(activations, model.Activation{Token: key.Token, Expiry: computed})
			}
		}

		remaining, depleted := remainingDisplay(limit, used)

		expired := model.AccessKey{Status: status, Expiry: expiry}.IsExpired(now)

		summaries = append(summaries, KeySummary{
			Name:      key.Name,
			Token:     key.Token,
			Expiry:    expiry,
			Remaining: remaining,
			Status:    status,
			UsedBytes: used,
			Depleted:  depleted,
			Expired:   expired,
		})
	}

	if len(activations) > 0 {
		if err := s.keys.ActivateBatch(ctx, activations); err != nil {
			slog.Error("activation batch failed", "count", len(activations), "error", err)
		} else {
			slog.Info("on-hold keys activated", "count", len(activations))
		}
	}

	return summaries, nil
}

// remainingDisplay renders the remaining quota for the admin listing:
// "Unlimited" when no limit is enforced, otherwise the remaining gigabytes
// with two decimals, bottoming out at "0 GB" once the budget is gone.
func remainingDisplay(limit, used int64) (string, bool) {
	if limit <= 0 {
		return "Unlimited", false
	}

	remaining := limit - used
	if remaining <= 0 {
		return "0 GB", true
	}

	gb := float64(remaining) / (1000 * 1000 * 1000)
	return fmt.Sprintf("%.2f GB", gb), false
}
