package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
	internalerrors "github.com/quickfaqs/quickfaqs-api/internal/errors"
	"github.com/quickfaqs/quickfaqs-api/internal/logging"
	"github.com/quickfaqs/quickfaqs-api/internal/utils"
)

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID        string           `json:"id"`
	Email     string           `json:"email"`
	Name      string           `json:"name,omitempty"`
	Tier      entitlement.Tier `json:"subscriptionStatus"`
	Credits   int64            `json:"faqCredits"`
	Unlimited bool             `json:"unlimited"`
}

// NewAccountResponse converts a to its public view.
func NewAccountResponse(a *entitlement.Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID,
		Email:     a.Email,
		Name:      a.Name,
		Tier:      a.Tier,
		Credits:   a.Credits,
		Unlimited: !a.Tier.Metered(),
	}
}

type sessionResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	User      AccountResponse `json:"user"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Handlers serves signup, login and the current account.
type Handlers struct {
	store        entitlement.Store
	tokens       *Tokens
	hashPassword func(string) (string, error)
}

// NewHandlers creates auth handlers.
func NewHandlers(store entitlement.Store, tokens *Tokens) *Handlers {
	return &Handlers{store: store, tokens: tokens, hashPassword: HashPassword}
}

// HandleRegister handles POST /api/auth/register.
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "register"
	var req registerRequest
	if err := utils.DecodeJSONBody(w, r, op, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	email := entitlement.NormalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		utils.WriteError(w, internalerrors.Validation(op, "A valid email is required"))
		return
	}
	if err := ValidatePasswordComplexity(req.Password); err != nil {
		utils.WriteError(w, internalerrors.Validation(op, err.Error()))
		return
	}

	hash, err := h.hashPassword(req.Password)
	if err != nil {
		utils.WriteError(w, internalerrors.New(internalerrors.ErrorTypeInternal, op, err))
		return
	}

	account := &entitlement.Account{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
	}
	if err := h.store.CreateAccount(r.Context(), account); err != nil {
		if errors.Is(err, entitlement.ErrAccountExists) {
			utils.WriteError(w, internalerrors.Validation(op, "User already exists"))
			return
		}
		logging.FromContext(r.Context()).Error().Err(err).Msg("Failed to create account")
		utils.WriteError(w, internalerrors.StoreWrite(op, err))
		return
	}

	logging.FromContext(r.Context()).Info().
		Str("account_id", account.ID).
		Msg("Account registered")
	h.writeSession(w, http.StatusCreated, account)
}

// HandleLogin handles POST /api/auth/login.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	const op = "login"
	var req loginRequest
	if err := utils.DecodeJSONBody(w, r, op, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	invalid := internalerrors.New(internalerrors.ErrorTypeAuth, op, internalerrors.ErrUnauthorized).
		WithMessage("Invalid email or password")

	account, err := h.store.GetAccountByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, entitlement.ErrAccountNotFound) {
			utils.WriteError(w, invalid)
			return
		}
		utils.WriteError(w, err)
		return
	}
	if !CheckPasswordHash(req.Password, account.PasswordHash) {
		utils.WriteError(w, invalid)
		return
	}
	h.writeSession(w, http.StatusOK, account)
}

// HandleMe handles GET /api/auth/me.
func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := AccountIDFromContext(r.Context())
	if !ok {
		utils.WriteError(w, internalerrors.New(internalerrors.ErrorTypeAuth, "me", internalerrors.ErrUnauthorized).
			WithMessage("Not authorized"))
		return
	}
	account, err := h.store.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, entitlement.ErrAccountNotFound) {
			utils.WriteError(w, internalerrors.NotFound("me", "User not found"))
			return
		}
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]AccountResponse{"user": NewAccountResponse(account)})
}

func (h *Handlers) writeSession(w http.ResponseWriter, status int, account *entitlement.Account) {
	token, expires, err := h.tokens.Issue(account.ID)
	if err != nil {
		utils.WriteError(w, internalerrors.New(internalerrors.ErrorTypeInternal, "issue_token", err))
		return
	}
	utils.WriteJSON(w, status, sessionResponse{
		Token:     token,
		ExpiresAt: expires,
		User:      NewAccountResponse(account),
	})
}
