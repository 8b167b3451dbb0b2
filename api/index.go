package handler

import (
	"net/http"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/app"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/config"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/observability"
)

var mux http.Handler

func init() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := observability.NewLogger(observability.LogConfig{Level: cfg.LogLevel, Format: "json"})

	// Note: On Vercel, db.sqlite is ephemeral unless using a remote SQL/Turso URL in DATABASE_URL
	a, err := app.New(cfg, logger)
	if err != nil {
		panic(err)
	}
	mux = a.Handler
}

// Handler is the entrypoint for Vercel
func Handler(w http.ResponseWriter, r *http.Request) {
	mux.ServeHTTP(w, r)
}
