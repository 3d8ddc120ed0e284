package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/erazemk/pujcovna/internal/apperr"
	"github.com/erazemk/pujcovna/internal/importer"
	"github.com/erazemk/pujcovna/internal/model"
	"github.com/erazemk/pujcovna/internal/roster"
	"github.com/erazemk/pujcovna/internal/scan"
)

// Rendered person code sizes in pixels.
const (
	codeWidth  = 600
	codeHeight = 120
	maxCodeDim = 4000
)

// PeopleHandler handles roster endpoints.
type PeopleHandler struct {
	Roster    *roster.Service
	Log       *zap.Logger
	MaxUpload int64
}

// personRequest accepts dates as text, e.g. "2000-01-31" or "31.1.2000".
type personRequest struct {
	Name        string `json:"name"`
	DateOfBirth string `json:"date_of_birth"`
	PhotoURL    string `json:"photo_url"`
}

func (p personRequest) toNewPerson() (model.NewPerson, error) {
	np := model.NewPerson{Name: p.Name, PhotoURL: p.PhotoURL}
	if p.DateOfBirth != "" {
		dob, err := importer.ParseDate(p.DateOfBirth)
		if err != nil {
			return np, apperr.Validation("people", "invalid date_of_birth %q", p.DateOfBirth)
		}
		np.DateOfBirth = &dob
	}
	return np, nil
}

type batchResultResponse struct {
	Index  int           `json:"index"`
	Person *model.Person `json:"person,omitempty"`
	Error  *errorBody    `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchResultResponse `json:"results"`
	Created int                   `json:"created"`
	Failed  int                   `json:"failed"`
}

func newBatchResponse(results []roster.BatchResult) batchResponse {
	resp := batchResponse{Results: make([]batchResultResponse, len(results))}
	for i, r := range results {
		resp.Results[i] = batchResultResponse{Index: r.Index, Person: r.Person, Error: recordError(r.Err)}
		if r.Err != nil {
			resp.Failed++
		} else {
			resp.Created++
		}
	}
	return resp
}

// List handles GET /api/people.
func (h *PeopleHandler) List(w http.ResponseWriter, r *http.Request) {
	people, err := h.Roster.ListPeople(r.Context())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, people)
}

// Create handles POST /api/people.
func (h *PeopleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req personRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	np, err := req.toNewPerson()
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	p, err := h.Roster.AddPerson(r.Context(), np)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusCreated, p)
}

// Batch handles POST /api/people/batch. Each record succeeds or fails on
// its own; the response lists the outcomes in input order.
func (h *PeopleHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req []personRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	results := make([]roster.BatchResult, len(req))
	var records []model.NewPerson
	var positions []int
	for i, pr := range req {
		results[i].Index = i
		np, err := pr.toNewPerson()
		if err != nil {
			results[i].Err = err
			continue
		}
		records = append(records, np)
		positions = append(positions, i)
	}

	for j, res := range h.Roster.BatchAddPeople(r.Context(), records) {
		res.Index = positions[j]
		results[positions[j]] = res
	}

	resp := newBatchResponse(results)
	h.Log.Info("people batch added", zap.String("user", username(r.Context())),
		zap.Int("created", resp.Created), zap.Int("failed", resp.Failed))
	jsonResponse(w, http.StatusOK, resp)
}

// Import handles POST /api/people/import with an XLSX or CSV body.
func (h *PeopleHandler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := readUpload(w, r, "file", h.MaxUpload)
	if err != nil {
		badRequest(w, "file too large or invalid upload")
		return
	}

	results, err := h.Roster.ImportSpreadsheet(r.Context(), data)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, newBatchResponse(results))
}

// Get handles GET /api/people/{id}.
func (h *PeopleHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.find(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// UploadPhoto handles PUT /api/people/{id}/photo.
func (h *PeopleHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	data, err := readUpload(w, r, "image", h.MaxUpload)
	if err != nil {
		badRequest(w, "file too large or invalid upload")
		return
	}

	ref, err := h.Roster.UploadPhoto(r.Context(), chi.URLParam(r, "id"), data)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"photo_url": ref})
}

// Code handles GET /api/people/{id}/code.png. The image encodes the person
// id so it can be printed on an ID card and scanned at the desk.
func (h *PeopleHandler) Code(w http.ResponseWriter, r *http.Request) {
	width, err := dimension(r, "w", codeWidth)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	height, err := dimension(r, "h", codeHeight)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	p, ok := h.find(w, r)
	if !ok {
		return
	}

	png, err := scan.EncodeCode128(p.ID, width, height)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *PeopleHandler) find(w http.ResponseWriter, r *http.Request) (*model.Person, bool) {
	id := chi.URLParam(r, "id")
	p, err := h.Roster.FindPersonByIdentifier(r.Context(), id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return nil, false
	}
	if p == nil {
		jsonError(w, http.StatusNotFound, apperr.KindNotFound.String(), "person not found")
		return nil, false
	}
	return p, true
}

func dimension(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > maxCodeDim {
		return 0, apperr.Validation("people.Code", "invalid %s", name)
	}
	return n, nil
}
