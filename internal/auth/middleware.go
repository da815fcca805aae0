package auth

import (
	"net/http"
	"strings"

	internalerrors "github.com/quickfaqs/quickfaqs-api/internal/errors"
	"github.com/quickfaqs/quickfaqs-api/internal/logging"
	"github.com/quickfaqs/quickfaqs-api/internal/utils"
)

// TokenVerifier resolves a bearer token to an account ID.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// RequireAccount rejects requests without a valid bearer token and stores
// the token's account ID in the request context.
func RequireAccount(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				utils.WriteError(w, internalerrors.New(internalerrors.ErrorTypeAuth, "authenticate", internalerrors.ErrUnauthorized).
					WithMessage("Not authorized, no token"))
				return
			}
			accountID, err := verifier.Verify(token)
			if err != nil {
				logging.FromContext(r.Context()).Debug().Err(err).Msg("Rejected session token")
				utils.WriteError(w, internalerrors.New(internalerrors.ErrorTypeAuth, "authenticate", err).
					WithMessage("Not authorized, token failed"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), accountID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
