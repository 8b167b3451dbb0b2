package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository("file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Failed to init db: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newCollection(id, slug string) *domain.Collection {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Collection{
		ID:        id,
		Slug:      slug,
		Name:      "Event " + id,
		UploadURL: "http://localhost:8080/upload/" + slug,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSlugNamespace(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	exists, err := repo.SlugExists(ctx, "my-event")
	if err != nil || exists {
		t.Fatalf("SlugExists on empty store = %v, %v", exists, err)
	}

	ok, err := repo.ClaimSlug(ctx, "my-event", "c1")
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v", ok, err)
	}
	ok, err = repo.ClaimSlug(ctx, "my-event", "c2")
	if err != nil || ok {
		t.Fatalf("second claim = %v, %v, want rejected", ok, err)
	}
	exists, _ = repo.SlugExists(ctx, "my-event")
	if !exists {
		t.Error("claimed slug not reported as existing")
	}

	if err := repo.ReleaseSlug(ctx, "my-event"); err != nil {
		t.Fatal(err)
	}
	exists, _ = repo.SlugExists(ctx, "my-event")
	if exists {
		t.Error("released slug still exists")
	}
}

func TestCollectionLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	c := newCollection("c1", "my-event")
	if err := repo.CreateCollection(ctx, c); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if err := repo.CreateCollection(ctx, newCollection("c2", "my-event")); !errors.Is(err, domain.ErrSlugTaken) {
		t.Errorf("duplicate slug: got %v, want ErrSlugTaken", err)
	}

	got, err := repo.GetCollectionBySlug(ctx, "my-event")
	if err != nil || got == nil {
		t.Fatalf("GetCollectionBySlug = %v, %v", got, err)
	}
	if got.ID != "c1" || got.Name != c.Name || got.UploadURL != c.UploadURL {
		t.Errorf("unexpected collection %+v", got)
	}

	missing, err := repo.GetCollection(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetCollection(missing) = %v, %v", missing, err)
	}

	got.Name = "Renamed"
	got.Slug = "renamed"
	if err := repo.UpdateCollection(ctx, got); err != nil {
		t.Fatalf("UpdateCollection: %v", err)
	}
	got, _ = repo.GetCollection(ctx, "c1")
	if got.Slug != "renamed" || got.Name != "Renamed" {
		t.Errorf("update not stored: %+v", got)
	}

	ghost := newCollection("ghost", "ghost")
	if err := repo.UpdateCollection(ctx, ghost); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("update missing: got %v", err)
	}

	list, err := repo.ListCollections(ctx, 10, 0, map[string]interface{}{"search": "renam"})
	if err != nil || len(list) != 1 {
		t.Errorf("ListCollections = %d, %v", len(list), err)
	}
	count, err := repo.CountCollections(ctx, nil)
	if err != nil || count != 1 {
		t.Errorf("CountCollections = %d, %v", count, err)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cfg, err := repo.GetConfig(ctx, "c1")
	if err != nil || cfg != (domain.CollectionConfig{}) {
		t.Fatalf("GetConfig without rows = %+v, %v", cfg, err)
	}

	want := domain.CollectionConfig{RotationSeconds: 8, Polaroid: true}
	if err := repo.SaveConfig(ctx, "c1", want); err != nil {
		t.Fatal(err)
	}
	want.Moderation = true
	if err := repo.SaveConfig(ctx, "c1", want); err != nil {
		t.Fatal(err)
	}
	got, err := repo.GetConfig(ctx, "c1")
	if err != nil || got != want {
		t.Errorf("GetConfig = %+v, %v, want %+v", got, err, want)
	}
}

func TestPhotos(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	var seqs []int64
	for _, id := range []string{"p1", "p2", "p3"} {
		it := &domain.Item{ID: id, CollectionID: "c1", ImageURL: "https://img/" + id, Visible: id != "p2", CreatedAt: time.Now()}
		if err := repo.CreatePhoto(ctx, it); err != nil {
			t.Fatalf("CreatePhoto(%s): %v", id, err)
		}
		seqs = append(seqs, it.Seq)
	}
	if !(seqs[0] < seqs[1] && seqs[1] < seqs[2]) {
		t.Errorf("sequence not increasing: %v", seqs)
	}

	snapshot, err := repo.FetchSnapshot(ctx, "c1")
	if err != nil || len(snapshot) != 3 {
		t.Fatalf("FetchSnapshot = %d items, %v", len(snapshot), err)
	}
	if snapshot[1].ID != "p2" || snapshot[1].Visible {
		t.Errorf("hidden photo missing from snapshot: %+v", snapshot[1])
	}

	visible, _ := repo.ListPhotos(ctx, "c1", true)
	if len(visible) != 2 {
		t.Errorf("visible photos = %d, want 2", len(visible))
	}

	it, err := repo.SetPhotoVisibility(ctx, "p2", true)
	if err != nil || it == nil || !it.Visible || it.Seq != seqs[1] {
		t.Errorf("SetPhotoVisibility = %+v, %v", it, err)
	}
	it, err = repo.SetPhotoVisibility(ctx, "nope", true)
	if err != nil || it != nil {
		t.Errorf("SetPhotoVisibility(missing) = %+v, %v", it, err)
	}

	if err := repo.DeletePhoto(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	if it, _ := repo.GetPhoto(ctx, "p1"); it != nil {
		t.Error("deleted photo still present")
	}

	empty, err := repo.FetchSnapshot(ctx, "other")
	if err != nil || len(empty) != 0 {
		t.Errorf("snapshot of unknown collection = %v, %v", empty, err)
	}
}

func TestDeleteCollectionReleasesEverything(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	repo.ClaimSlug(ctx, "old-name", "c1")
	repo.ClaimSlug(ctx, "new-name", "c1")
	repo.CreateCollection(ctx, newCollection("c1", "new-name"))
	repo.SaveConfig(ctx, "c1", domain.CollectionConfig{RotationSeconds: 3})
	repo.CreatePhoto(ctx, &domain.Item{ID: "p1", CollectionID: "c1", ImageURL: "x", Visible: true, CreatedAt: time.Now()})

	if err := repo.DeleteCollection(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	for _, slug := range []string{"old-name", "new-name"} {
		if exists, _ := repo.SlugExists(ctx, slug); exists {
			t.Errorf("slug %s still claimed", slug)
		}
	}
	if photos, _ := repo.ListPhotos(ctx, "c1", false); len(photos) != 0 {
		t.Errorf("photos left: %d", len(photos))
	}
	if cfg, _ := repo.GetConfig(ctx, "c1"); cfg.RotationSeconds != 0 {
		t.Error("config left behind")
	}
}

func TestDumpRestore(t *testing.T) {
	src := newTestRepo(t)
	ctx := context.Background()

	c := newCollection("c1", "party")
	c.Config = domain.CollectionConfig{RotationSeconds: 7, Moderation: true}
	src.ClaimSlug(ctx, "old-party", "c1")
	src.ClaimSlug(ctx, "party", "c1")
	src.CreateCollection(ctx, c)
	src.SaveConfig(ctx, "c1", c.Config)
	src.CreatePhoto(ctx, &domain.Item{ID: "p1", CollectionID: "c1", ImageURL: "a", Visible: true, CreatedAt: time.Now()})
	src.CreatePhoto(ctx, &domain.Item{ID: "p2", CollectionID: "c1", ImageURL: "b", Visible: false, CreatedAt: time.Now()})

	dump, err := src.Dump(ctx)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if len(dump.Collections) != 1 || len(dump.Claims) != 2 || len(dump.Photos) != 2 {
		t.Fatalf("unexpected dump sizes: %d collections, %d claims, %d photos", len(dump.Collections), len(dump.Claims), len(dump.Photos))
	}
	if dump.Collections[0].Config != c.Config {
		t.Errorf("dumped config = %+v", dump.Collections[0].Config)
	}

	dst, err := NewSQLiteRepository("file:" + t.Name() + "_dst?mode=memory&cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Close()

	stats, err := dst.Restore(ctx, dump)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if stats.Collections != 1 || stats.Photos != 2 || stats.Skipped != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if exists, _ := dst.SlugExists(ctx, "old-party"); !exists {
		t.Error("retired slug not restored")
	}
	photos, _ := dst.ListPhotos(ctx, "c1", false)
	if len(photos) != 2 || photos[0].ID != "p1" || photos[1].Visible {
		t.Errorf("restored photos = %+v", photos)
	}

	stats, err = dst.Restore(ctx, dump)
	if err != nil || stats.Skipped != 1 || stats.Photos != 0 {
		t.Errorf("second restore = %+v, %v", stats, err)
	}
}

func TestRestoreSkipsSlugClaimedByAnotherCollection(t *testing.T) {
	ctx := context.Background()
	src := newTestRepo(t)
	src.ClaimSlug(ctx, "party", "c1")
	src.CreateCollection(ctx, newCollection("c1", "party"))
	src.CreatePhoto(ctx, &domain.Item{ID: "p1", CollectionID: "c1", ImageURL: "a", Visible: true, CreatedAt: time.Now()})
	dump, err := src.Dump(ctx)
	if err != nil {
		t.Fatal(err)
	}

	dst, err := NewSQLiteRepository("file:" + t.Name() + "_dst?mode=memory&cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Close()
	// c9 was renamed away from "party" and still holds the old claim.
	dst.ClaimSlug(ctx, "party", "c9")
	dst.ClaimSlug(ctx, "party-2", "c9")
	dst.CreateCollection(ctx, newCollection("c9", "party-2"))

	stats, err := dst.Restore(ctx, dump)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if stats.Collections != 0 || stats.Photos != 0 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if c, err := dst.GetCollection(ctx, "c1"); err != nil || c != nil {
		t.Errorf("c1 restored under a foreign claim: %+v, %v", c, err)
	}
	if c, _ := dst.GetCollectionBySlug(ctx, "party"); c != nil {
		t.Errorf("party resolves to %+v", c)
	}
	if photos, _ := dst.ListPhotos(ctx, "c1", false); len(photos) != 0 {
		t.Errorf("photos restored: %+v", photos)
	}
}
