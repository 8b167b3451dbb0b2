package handler

import (
	"net/http"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
)

// FeedServer streams a collection's change feed over an upgraded connection.
type FeedServer interface {
	Serve(w http.ResponseWriter, r *http.Request, collectionID string)
}

// GalleryHandler serves what a wall needs to display a collection: the
// collection itself, its visible photos, its config and its change feed.
type GalleryHandler struct {
	collections ports.CollectionService
	photos      ports.PhotoService
	settings    ports.ConfigSource
	feed        FeedServer
}

func NewGalleryHandler(collections ports.CollectionService, photos ports.PhotoService, settings ports.ConfigSource, feed FeedServer) *GalleryHandler {
	return &GalleryHandler{collections: collections, photos: photos, settings: settings, feed: feed}
}

func (h *GalleryHandler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	collection, err := h.collections.GetCollectionBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, collection)
}

// Photos returns the visible photos in creation order. Empty tells a wall
// that loaded fine but has nothing to show yet.
func (h *GalleryHandler) Photos(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.collections.GetCollection(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	items, err := h.photos.ListPhotos(r.Context(), id, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  items,
		"empty": len(items) == 0,
	})
}

// Config returns the stored config plus the interval resolved against the
// server default.
func (h *GalleryHandler) Config(w http.ResponseWriter, r *http.Request) {
	collection, err := h.collections.GetCollection(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	interval, err := h.settings.RotationInterval(r.Context(), collection.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.DisplayConfig{
		CollectionConfig: collection.Config,
		IntervalMillis:   interval.Milliseconds(),
	})
}

func (h *GalleryHandler) Feed(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.collections.GetCollection(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	h.feed.Serve(w, r, id)
}
