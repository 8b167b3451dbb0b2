package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /c/{id}/photos", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "c1" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(PhotosResponse{Data: []domain.Item{
			{ID: "a", CollectionID: "c1", ImageURL: "https://img/a", Visible: true, Seq: 1},
			{ID: "b", CollectionID: "c1", ImageURL: "https://img/b", Visible: true, Seq: 2},
		}})
	})
	mux.HandleFunc("GET /c/{id}/config", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "c1":
			json.NewEncoder(w).Encode(domain.CollectionConfig{RotationSeconds: 7})
		case "resolved":
			json.NewEncoder(w).Encode(domain.DisplayConfig{IntervalMillis: 2500})
		case "unset":
			json.NewEncoder(w).Encode(domain.CollectionConfig{})
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("GET /g/{slug}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.Collection{ID: "c1", Slug: r.PathValue("slug")})
	})
	mux.HandleFunc("GET /img/a.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg-bytes"))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestFetchSnapshot(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.URL+"/", time.Second)
	ctx := context.Background()

	items, err := c.FetchSnapshot(ctx, "c1")
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if len(items) != 2 || items[0].ID != "a" || items[1].Seq != 2 {
		t.Errorf("items = %+v", items)
	}

	if _, err := c.FetchSnapshot(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing collection: got %v", err)
	}
}

func TestRotationInterval(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.URL, 5*time.Second)

	tests := []struct {
		id      string
		want    time.Duration
		wantErr bool
	}{
		{"c1", 7 * time.Second, false},
		{"resolved", 2500 * time.Millisecond, false},
		{"unset", 5 * time.Second, false},
		{"broken", 5 * time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := c.RotationInterval(context.Background(), tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Errorf("interval = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollectionAndDownload(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.URL, time.Second)
	ctx := context.Background()

	col, err := c.Collection(ctx, "party")
	if err != nil || col.ID != "c1" || col.Slug != "party" {
		t.Fatalf("Collection = %+v, %v", col, err)
	}

	var buf bytes.Buffer
	if err := c.Download(ctx, ts.URL+"/img/a.jpg", &buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "jpeg-bytes" {
		t.Errorf("downloaded %q", buf.String())
	}
	if err := c.Download(ctx, ts.URL+"/img/none.jpg", &buf); err == nil {
		t.Error("expected error for missing image")
	}
}
