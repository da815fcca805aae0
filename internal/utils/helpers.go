package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	internalerrors "github.com/quickfaqs/quickfaqs-api/internal/errors"
	"github.com/rs/zerolog/log"
)

// DefaultJSONBodyLimit caps request bodies decoded by DecodeJSONBody.
const DefaultJSONBodyLimit = 64 * 1024

// ErrorResponse is the JSON body of every non-2xx API answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON[T any](w http.ResponseWriter, status int, v T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Int("status", status).Msg("encode JSON response")
	}
}

// WriteError maps err onto its HTTP status and client-safe message.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, internalerrors.StatusCode(err), ErrorResponse{Error: internalerrors.PublicMessage(err)})
}

// DecodeJSONBody decodes a size-limited JSON request body into dst. Unknown
// fields are ignored; malformed bodies yield a validation error.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, op string, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, DefaultJSONBodyLimit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return internalerrors.Validation(op, "Request body too large")
		case errors.Is(err, io.EOF):
			return internalerrors.Validation(op, "Request body is required")
		default:
			return internalerrors.Validation(op, fmt.Sprintf("Invalid JSON body: %v", err))
		}
	}
	return nil
}

// ParseBool interprets common boolean strings, returning true for typical truthy values.
func ParseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// GetenvTrim returns the environment variable value with surrounding whitespace removed.
func GetenvTrim(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
