package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/erazemk/pujcovna/internal/apperr"
	"github.com/erazemk/pujcovna/internal/catalog"
	"github.com/erazemk/pujcovna/internal/model"
)

// ItemsHandler handles catalog endpoints.
type ItemsHandler struct {
	Catalog *catalog.Service
	Log     *zap.Logger
}

type createItemRequest struct {
	Name          string `json:"name"`
	TotalQuantity int    `json:"total_quantity"`
	Consumable    bool   `json:"consumable"`
}

type createVariantRequest struct {
	Name          string `json:"name"`
	TotalQuantity int    `json:"total_quantity"`
}

type adjustRequest struct {
	// Delta is subtracted from available_quantity; negative values credit.
	Delta int `json:"delta"`
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Catalog.ListItems(r.Context())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	item, err := h.Catalog.AddItem(r.Context(), req.Name, req.TotalQuantity, req.Consumable)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.Catalog.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

// Adjust handles POST /api/items/{id}/availability.
func (h *ItemsHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, model.ItemTarget{ItemID: chi.URLParam(r, "id")})
}

// CreateVariant handles POST /api/items/{id}/variants.
func (h *ItemsHandler) CreateVariant(w http.ResponseWriter, r *http.Request) {
	var req createVariantRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	v, err := h.Catalog.AddVariant(r.Context(), chi.URLParam(r, "id"), req.Name, req.TotalQuantity)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusCreated, v)
}

// DeleteVariant handles DELETE /api/items/{id}/variants/{variantID}. A variant
// of another item is reported as not found.
func (h *ItemsHandler) DeleteVariant(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "variantID")
	v, err := h.Catalog.FindVariant(r.Context(), variantID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if v == nil || v.ItemID != chi.URLParam(r, "id") {
		jsonError(w, http.StatusNotFound, apperr.KindNotFound.String(), "variant not found")
		return
	}

	if err := h.Catalog.DeleteVariant(r.Context(), variantID); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "variant deleted"})
}

// AdjustVariant handles POST /api/items/{id}/variants/{variantID}/availability.
func (h *ItemsHandler) AdjustVariant(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, model.VariantTarget{
		ItemID:    chi.URLParam(r, "id"),
		VariantID: chi.URLParam(r, "variantID"),
	})
}

func (h *ItemsHandler) adjust(w http.ResponseWriter, r *http.Request, target model.Target) {
	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	a, err := h.Catalog.AdjustAvailability(r.Context(), target, req.Delta)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, a)
}
