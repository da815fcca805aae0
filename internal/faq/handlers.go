package faq

import (
	"net/http"
	"time"

	"github.com/quickfaqs/quickfaqs-api/internal/auth"
	internalerrors "github.com/quickfaqs/quickfaqs-api/internal/errors"
	"github.com/quickfaqs/quickfaqs-api/internal/utils"
)

// Handlers serves the authenticated FAQ endpoints.
type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

type generateRequest struct {
	CompanyName    string `json:"companyName"`
	ProductDetails string `json:"productDetails"`
}

type faqSummary struct {
	ID           string    `json:"id"`
	CompanyName  string    `json:"companyName"`
	GeneratedFAQ string    `json:"generatedFAQ"`
	CreatedAt    time.Time `json:"createdAt"`
}

func summarize(f *FAQ) faqSummary {
	return faqSummary{ID: f.ID, CompanyName: f.CompanyName, GeneratedFAQ: f.GeneratedFAQ, CreatedAt: f.CreatedAt}
}

// HandleGenerate handles POST /api/faq/generate.
func (h *Handlers) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r, "generate_faq")
	if !ok {
		return
	}

	var req generateRequest
	if err := utils.DecodeJSONBody(w, r, "generate_faq", &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	faq, err := h.service.Generate(r.Context(), accountID, Prompt{
		CompanyName:    req.CompanyName,
		ProductDetails: req.ProductDetails,
	})
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]faqSummary{"faq": summarize(faq)})
}

// HandleList handles GET /api/faq/user.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r, "list_faqs")
	if !ok {
		return
	}

	faqs, err := h.service.List(r.Context(), accountID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	out := make([]faqSummary, 0, len(faqs))
	for _, f := range faqs {
		out = append(out, summarize(f))
	}
	utils.WriteJSON(w, http.StatusOK, map[string][]faqSummary{"faqs": out})
}

// HandleGet handles GET /api/faq/{id}.
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r, "get_faq")
	if !ok {
		return
	}

	faq, err := h.service.Get(r.Context(), accountID, r.PathValue("id"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]*FAQ{"faq": faq})
}

func requireAccount(w http.ResponseWriter, r *http.Request, op string) (string, bool) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		utils.WriteError(w, internalerrors.New(internalerrors.ErrorTypeAuth, op, internalerrors.ErrUnauthorized).
			WithMessage("Not authorized"))
	}
	return accountID, ok
}
