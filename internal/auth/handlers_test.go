package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestHandlers(t *testing.T) (*Handlers, *entitlement.MemoryStore, *Tokens) {
	t.Helper()
	store := entitlement.NewMemoryStore()
	tokens, err := NewTokens("test-secret", time.Hour)
	require.NoError(t, err)
	h := NewHandlers(store, tokens)
	h.hashPassword = func(pw string) (string, error) { return hashPasswordWithCost(pw, bcrypt.MinCost) }
	return h, store, tokens
}

func doJSON(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestRegisterCreatesFreeAccount(t *testing.T) {
	h, store, tokens := newTestHandlers(t)

	rec := doJSON(h.HandleRegister, `{"name":"Ada","email":"Ada@Example.com","password":"password1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, entitlement.TierFree, resp.User.Tier)
	assert.Equal(t, entitlement.FreeTierGrant, resp.User.Credits)
	assert.False(t, resp.User.Unlimited)

	accountID, err := tokens.Verify(resp.Token)
	require.NoError(t, err)
	stored, err := store.GetAccountByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, accountID)
	assert.NotEqual(t, "password1", stored.PasswordHash)
}

func TestRegisterRejectsDuplicateAndWeakInput(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	rec := doJSON(h.HandleRegister, `{"email":"a@example.com","password":"password1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(h.HandleRegister, `{"email":"A@example.com","password":"password1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "User already exists")

	rec = doJSON(h.HandleRegister, `{"email":"b@example.com","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(h.HandleRegister, `{"email":"not-an-email","password":"password1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	require.Equal(t, http.StatusCreated, doJSON(h.HandleRegister, `{"email":"c@example.com","password":"password1"}`).Code)

	rec := doJSON(h.HandleLogin, `{"email":"c@example.com","password":"password1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(h.HandleLogin, `{"email":"c@example.com","password":"password2"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(h.HandleLogin, `{"email":"nobody@example.com","password":"password1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid email or password")
}

func TestMeBehindRequireAccount(t *testing.T) {
	h, store, tokens := newTestHandlers(t)
	account := &entitlement.Account{Email: "me@example.com"}
	require.NoError(t, store.CreateAccount(context.Background(), account))
	token, _, err := tokens.Issue(account.ID)
	require.NoError(t, err)

	handler := RequireAccount(tokens)(http.HandlerFunc(h.HandleMe))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), account.ID)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAccountIDFromContext(t *testing.T) {
	_, ok := AccountIDFromContext(context.Background())
	assert.False(t, ok)

	id, ok := AccountIDFromContext(WithAccountID(context.Background(), "acct_1"))
	assert.True(t, ok)
	assert.Equal(t, "acct_1", id)
}
