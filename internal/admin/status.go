package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/quickfaqs/quickfaqs-api/internal/appmetrics"
	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
	"github.com/quickfaqs/quickfaqs-api/internal/utils"
	"github.com/rs/zerolog/log"
)

const readinessTimeout = 2 * time.Second

type statusResponse struct {
	Version       string                   `json:"version"`
	TotalAccounts int                      `json:"total_accounts"`
	ByTier        map[entitlement.Tier]int `json:"by_tier"`
}

// HandleHealthz returns 200 "ok" unconditionally (liveness check).
func HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz returns a handler that checks store connectivity (readiness check).
func HandleReadyz(store entitlement.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "text/plain")
		if store == nil || store.Ping(ctx) != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}

// HandleStatus returns a handler that reports accounts by tier.
func HandleStatus(store entitlement.Store, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := SyncTierGauges(r.Context(), store)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		total := 0
		for _, c := range counts {
			total += c
		}

		utils.WriteJSON(w, http.StatusOK, statusResponse{
			Version:       version,
			TotalAccounts: total,
			ByTier:        counts,
		})
	}
}

// SyncTierGauges refreshes the accounts-by-tier gauge and returns the counts.
// Known tiers are always reported so the label set stays stable.
func SyncTierGauges(ctx context.Context, store entitlement.Store) (map[entitlement.Tier]int, error) {
	counts, err := store.CountByTier(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count accounts by tier")
		return nil, err
	}
	for _, tier := range []entitlement.Tier{entitlement.TierFree, entitlement.TierBasic, entitlement.TierPremium} {
		if _, ok := counts[tier]; !ok {
			counts[tier] = 0
		}
	}
	for tier, c := range counts {
		appmetrics.AccountsByTier.WithLabelValues(string(tier)).Set(float64(c))
	}
	return counts, nil
}

// RunTierGauges refreshes the tier gauges every interval until ctx is done.
func RunTierGauges(ctx context.Context, store entitlement.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Prime once at startup so /metrics isn't empty for this gauge.
	_, _ = SyncTierGauges(ctx, store)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = SyncTierGauges(ctx, store)
		}
	}
}
