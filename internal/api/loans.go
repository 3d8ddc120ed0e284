package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/erazemk/pujcovna/internal/loans"
	"github.com/erazemk/pujcovna/internal/model"
	"github.com/erazemk/pujcovna/internal/store"
)

// LoansHandler handles loan endpoints.
type LoansHandler struct {
	Loans     *loans.Service
	Log       *zap.Logger
	MaxUpload int64
}

type createLoanRequest struct {
	ItemID    string  `json:"item_id"`
	VariantID *string `json:"variant_id"`
	PersonID  string  `json:"person_id"`
	Quantity  int     `json:"quantity"`
	Notes     string  `json:"notes"`
}

type conditionRequest struct {
	Notes    string  `json:"condition_notes"`
	PhotoURL *string `json:"condition_photo"`
}

// Create handles POST /api/loans.
func (h *LoansHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.ItemID == "" || req.PersonID == "" {
		badRequest(w, "item_id and person_id required")
		return
	}

	loan, err := h.Loans.CreateLoan(r.Context(), model.NewTarget(req.ItemID, req.VariantID), req.PersonID, req.Quantity, req.Notes)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusCreated, loan)
}

// Get handles GET /api/loans/{id}.
func (h *LoansHandler) Get(w http.ResponseWriter, r *http.Request) {
	loan, err := h.Loans.GetLoan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, loan)
}

// Return handles POST /api/loans/{id}/return.
func (h *LoansHandler) Return(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Loans.ReturnLoan(r.Context(), id); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	loan, err := h.Loans.GetLoan(r.Context(), id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, loan)
}

// UpdateCondition handles PUT /api/loans/{id}/condition.
func (h *LoansHandler) UpdateCondition(w http.ResponseWriter, r *http.Request) {
	var req conditionRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	loan, err := h.Loans.UpdateConditionNotes(r.Context(), chi.URLParam(r, "id"), req.Notes, req.PhotoURL)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, loan)
}

// UploadPhoto handles PUT /api/loans/{id}/photo.
func (h *LoansHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	data, err := readUpload(w, r, "image", h.MaxUpload)
	if err != nil {
		badRequest(w, "file too large or invalid upload")
		return
	}

	ref, err := h.Loans.UploadConditionPhoto(r.Context(), chi.URLParam(r, "id"), data)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"condition_photo": ref})
}

// Active handles GET /api/loans/active. Pass consumables=true to include
// loans of consumable items.
func (h *LoansHandler) Active(w http.ResponseWriter, r *http.Request) {
	include, _ := strconv.ParseBool(r.URL.Query().Get("consumables"))

	active, err := h.Loans.ListActive(r.Context(), include)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, active)
}

// History handles GET /api/loans.
func (h *LoansHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var limit int
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			badRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	filter := store.LoanFilter{
		PersonID: q.Get("person_id"),
		ItemID:   q.Get("item_id"),
		State:    q.Get("state"),
	}

	page, err := h.Loans.History(r.Context(), filter, q.Get("cursor"), limit)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, page)
}
