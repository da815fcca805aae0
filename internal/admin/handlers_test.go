package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
)

func TestHandleListAccounts(t *testing.T) {
	store := seedStore(t)
	handler := HandleListAccounts(store)

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantCount int
	}{
		{"all", "", http.StatusOK, 3},
		{"premium", "?tier=premium", http.StatusOK, 1},
		{"free upper case", "?tier=FREE", http.StatusOK, 2},
		{"limited", "?limit=1", http.StatusOK, 1},
		{"bad tier", "?tier=gold", http.StatusBadRequest, 0},
		{"bad limit", "?limit=-4", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(http.MethodGet, "/admin/accounts"+tt.query, nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var body struct {
				Accounts []entitlement.Account `json:"accounts"`
				Count    int                   `json:"count"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Count != tt.wantCount || len(body.Accounts) != tt.wantCount {
				t.Fatalf("count = %d (%d accounts), want %d", body.Count, len(body.Accounts), tt.wantCount)
			}
		})
	}

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/admin/accounts", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d, want 405", rec.Code)
	}
}

func TestHandleListAccountsHidesPasswordHash(t *testing.T) {
	store := entitlement.NewMemoryStore()
	if err := store.CreateAccount(t.Context(), &entitlement.Account{Email: "x@example.com", PasswordHash: "$2a$12$secret"}); err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	HandleListAccounts(store)(rec, httptest.NewRequest(http.MethodGet, "/admin/accounts", nil))
	if strings.Contains(rec.Body.String(), "$2a$12$secret") {
		t.Fatal("password hash leaked in admin listing")
	}
}

func TestAdminKeyMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := AdminKeyMiddleware("s3cret", next)

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong key", "X-Admin-Key", "nope", http.StatusUnauthorized},
		{"header", "X-Admin-Key", "s3cret", http.StatusNoContent},
		{"bearer", "Authorization", "Bearer s3cret", http.StatusNoContent},
		{"basic is ignored", "Authorization", "Basic s3cret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/accounts", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/accounts", nil)
	req.Header.Set("X-Admin-Key", "")
	AdminKeyMiddleware("", next).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("empty configured key must reject, got %d", rec.Code)
	}
}
