package admin

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
	"github.com/quickfaqs/quickfaqs-api/internal/utils"
	"github.com/rs/zerolog/log"
)

const maxListLimit = 500

// HandleListAccounts returns a handler that lists accounts with their
// entitlement, optionally filtered by ?tier= and capped by ?limit=.
func HandleListAccounts(store entitlement.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		opts := entitlement.ListOptions{Limit: maxListLimit}
		if raw := strings.TrimSpace(r.URL.Query().Get("tier")); raw != "" {
			tier, err := entitlement.ParseTier(raw)
			if err != nil {
				utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse{Error: "unknown tier"})
				return
			}
			opts.Tier = tier
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse{Error: "limit must be a positive integer"})
				return
			}
			opts.Limit = min(n, maxListLimit)
		}

		accounts, err := store.ListAccounts(r.Context(), opts)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list accounts")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if accounts == nil {
			accounts = []*entitlement.Account{}
		}

		utils.WriteJSON(w, http.StatusOK, map[string]any{
			"accounts": accounts,
			"count":    len(accounts),
		})
	}
}

// AdminKeyMiddleware returns middleware that requires a valid admin API key.
func AdminKeyMiddleware(adminKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get("X-Admin-Key"))
		if key == "" {
			// Also check Authorization: Bearer <key>
			authz := r.Header.Get("Authorization")
			if strings.HasPrefix(authz, "Bearer ") {
				key = strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
			}
		}

		if key == "" || adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse{Error: "unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}
