package handler

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/config"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
)

// NewRouter creates and configures the main application router
func NewRouter(cfg *config.Config, collectionService ports.CollectionService, photoService ports.PhotoService, settings ports.ConfigSource, feed FeedServer, gatherer prometheus.Gatherer) http.Handler {
	// Initialize Handlers
	ch := NewCollectionHandler(collectionService)
	ph := NewPhotoHandler(photoService)
	gh := NewGalleryHandler(collectionService, photoService, settings, feed)
	authHandler := NewAuthHandler(cfg)

	// Initialize Middleware
	mw := NewMiddleware(cfg)

	// Setup Router
	mux := http.NewServeMux()

	// Public Routes
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	})
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /g/{slug}", gh.GetBySlug)
	mux.HandleFunc("GET /c/{id}/photos", gh.Photos)
	mux.HandleFunc("GET /c/{id}/config", gh.Config)
	mux.HandleFunc("GET /c/{id}/feed", gh.Feed)
	mux.HandleFunc("POST /upload/{slug}", ph.Upload)
	mux.HandleFunc("GET /auth/logout", authHandler.Logout)

	// Protected Routes
	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("POST /api/v1/collections", ch.CreateCollection)
	protectedMux.HandleFunc("GET /api/v1/collections", ch.ListCollections)
	protectedMux.HandleFunc("GET /api/v1/collections/{id}", ch.GetCollection)
	protectedMux.HandleFunc("PUT /api/v1/collections/{id}", ch.UpdateCollection)
	protectedMux.HandleFunc("DELETE /api/v1/collections/{id}", ch.DeleteCollection)
	protectedMux.HandleFunc("PUT /api/v1/collections/{id}/config", ch.UpdateConfig)
	protectedMux.HandleFunc("GET /api/v1/collections/{id}/photos", ph.List)
	protectedMux.HandleFunc("PUT /api/v1/photos/{id}/visibility", ph.SetVisibility)
	protectedMux.HandleFunc("DELETE /api/v1/photos/{id}", ph.Delete)

	// protectedMux holds the full paths, so it can sit behind the prefix.
	mux.Handle("/api/v1/", mw.AuthMiddleware(protectedMux))

	return mux
}
