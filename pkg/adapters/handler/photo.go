package handler

import (
	"encoding/json"
	"net/http"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
)

type PhotoHandler struct {
	service ports.PhotoService
}

func NewPhotoHandler(service ports.PhotoService) *PhotoHandler {
	return &PhotoHandler{service: service}
}

type uploadRequest struct {
	ImageURL string `json:"image_url"`
}

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

// Upload adds a photo to the collection named by the public slug.
func (h *PhotoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	item, err := h.service.Upload(r.Context(), r.PathValue("slug"), req.ImageURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// List returns every photo of a collection, hidden ones included.
func (h *PhotoHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListPhotos(r.Context(), r.PathValue("id"), false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": items})
}

func (h *PhotoHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Visible == nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	item, err := h.service.SetVisibility(r.Context(), r.PathValue("id"), *req.Visible)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *PhotoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePhoto(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
