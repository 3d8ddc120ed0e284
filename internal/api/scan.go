package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/erazemk/pujcovna/internal/model"
	"github.com/erazemk/pujcovna/internal/scan"
)

// ScanHandler handles scan session endpoints.
type ScanHandler struct {
	Desk      *scan.Desk
	Log       *zap.Logger
	MaxUpload int64
}

type submitCodeRequest struct {
	Code string `json:"code"`
}

type commitResultResponse struct {
	Entry scan.Entry  `json:"entry"`
	Loan  *model.Loan `json:"loan,omitempty"`
	Error *errorBody  `json:"error,omitempty"`
}

type commitResponse struct {
	Results []commitResultResponse `json:"results"`
	Session scan.SessionView       `json:"session"`
}

// Open handles POST /api/scan/sessions.
func (h *ScanHandler) Open(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusCreated, h.Desk.Open())
}

// Get handles GET /api/scan/sessions/{id}.
func (h *ScanHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.Desk.Session(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, view)
}

// Close handles DELETE /api/scan/sessions/{id}.
func (h *ScanHandler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.Desk.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "session closed"})
}

// Submit handles POST /api/scan/sessions/{id}/codes. A JSON body carries an
// already decoded code; any other body is an image to decode.
func (h *ScanHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var (
		res *scan.Resolution
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req submitCodeRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
		res, err = h.Desk.Submit(r.Context(), id, strings.TrimSpace(req.Code))
	} else {
		data, rerr := readUpload(w, r, "image", h.MaxUpload)
		if rerr != nil {
			badRequest(w, "file too large or invalid upload")
			return
		}
		res, err = h.Desk.SubmitImage(r.Context(), id, data)
	}
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// SetBasket handles PUT /api/scan/sessions/{id}/basket.
func (h *ScanHandler) SetBasket(w http.ResponseWriter, r *http.Request) {
	var entries []scan.Entry
	if err := decodeJSON(r, &entries); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	view, err := h.Desk.SetBasket(chi.URLParam(r, "id"), entries)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, view)
}

// Commit handles POST /api/scan/sessions/{id}/commit. Failed entries stay in
// the basket and are reported alongside the loans that were created.
func (h *ScanHandler) Commit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	results, err := h.Desk.Commit(r.Context(), id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	resp := commitResponse{Results: make([]commitResultResponse, len(results))}
	for i, res := range results {
		resp.Results[i] = commitResultResponse{Entry: res.Entry, Loan: res.Loan, Error: recordError(res.Err)}
	}
	if view, err := h.Desk.Session(id); err == nil {
		resp.Session = view
	}
	jsonResponse(w, http.StatusOK, resp)
}
