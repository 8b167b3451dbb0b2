package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
	_ "modernc.org/sqlite" // Local SQLite driver
)

type SQLiteRepository struct {
	db *sql.DB
}

var (
	_ ports.CollectionRepository = (*SQLiteRepository)(nil)
	_ ports.PhotoRepository      = (*SQLiteRepository)(nil)
	_ ports.NamespaceProbe       = (*SQLiteRepository)(nil)
	_ ports.SnapshotLoader       = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbURL string) (*SQLiteRepository, error) {
	driverName := "sqlite"
	if strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://") {
		driverName = "libsql"
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		upload_url TEXT,
		event_date TEXT,
		description TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS collection_slugs (
		slug TEXT PRIMARY KEY,
		collection_id TEXT NOT NULL,
		claimed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_collection_slugs_collection ON collection_slugs(collection_id);

	CREATE TABLE IF NOT EXISTS photos (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		collection_id TEXT NOT NULL,
		image_url TEXT NOT NULL,
		visible BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_photos_collection ON photos(collection_id, seq);

	CREATE TABLE IF NOT EXISTS collection_configs (
		collection_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (collection_id, key)
	);
	`
	_, err := db.Exec(query)
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Slug namespace

func (r *SQLiteRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM collection_slugs WHERE slug = ?)
			  OR EXISTS (SELECT 1 FROM collections WHERE slug = ?)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, slug, slug).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *SQLiteRepository) ClaimSlug(ctx context.Context, slug, collectionID string) (bool, error) {
	query := `INSERT OR IGNORE INTO collection_slugs (slug, collection_id, claimed_at) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, slug, collectionID, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseSlug drops a claim that never made it into a collection.
func (r *SQLiteRepository) ReleaseSlug(ctx context.Context, slug string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM collection_slugs WHERE slug = ?`, slug)
	return err
}

// Collections

func (r *SQLiteRepository) CreateCollection(ctx context.Context, c *domain.Collection) error {
	query := `INSERT INTO collections (id, slug, name, upload_url, event_date, description, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, c.ID, c.Slug, c.Name, c.UploadURL, c.EventDate, c.Description, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrSlugTaken, c.Slug)
	}
	return err
}

const collectionColumns = `id, slug, name, COALESCE(upload_url, ''), COALESCE(event_date, ''), COALESCE(description, ''), created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCollection(s scanner) (*domain.Collection, error) {
	var c domain.Collection
	err := s.Scan(&c.ID, &c.Slug, &c.Name, &c.UploadURL, &c.EventDate, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *SQLiteRepository) GetCollection(ctx context.Context, id string) (*domain.Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections WHERE id = ?`
	c, err := scanCollection(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *SQLiteRepository) GetCollectionBySlug(ctx context.Context, slug string) (*domain.Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections WHERE slug = ?`
	c, err := scanCollection(r.db.QueryRowContext(ctx, query, slug))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *SQLiteRepository) UpdateCollection(ctx context.Context, c *domain.Collection) error {
	query := `UPDATE collections SET slug = ?, name = ?, upload_url = ?, event_date = ?, description = ?, updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, c.Slug, c.Name, c.UploadURL, c.EventDate, c.Description, c.UpdatedAt, c.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrSlugTaken, c.Slug)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteCollection removes the collection with its photos, configs and slug claims.
func (r *SQLiteRepository) DeleteCollection(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM photos WHERE collection_id = ?`,
		`DELETE FROM collection_configs WHERE collection_id = ?`,
		`DELETE FROM collection_slugs WHERE collection_id = ?`,
		`DELETE FROM collections WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func collectionFilter(filters map[string]interface{}) (string, []interface{}) {
	where := ""
	args := []interface{}{}
	if search, ok := filters["search"].(string); ok && search != "" {
		where = " WHERE (name LIKE ? OR slug LIKE ?)"
		args = append(args, "%"+search+"%", "%"+search+"%")
	}
	return where, args
}

func (r *SQLiteRepository) ListCollections(ctx context.Context, limit, offset int, filters map[string]interface{}) ([]domain.Collection, error) {
	where, args := collectionFilter(filters)
	query := `SELECT ` + collectionColumns + ` FROM collections` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var collections []domain.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		collections = append(collections, *c)
	}
	return collections, rows.Err()
}

func (r *SQLiteRepository) CountCollections(ctx context.Context, filters map[string]interface{}) (int64, error) {
	where, args := collectionFilter(filters)
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections`+where, args...).Scan(&count)
	return count, err
}

// Configs

func (r *SQLiteRepository) SaveConfig(ctx context.Context, collectionID string, cfg domain.CollectionConfig) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO collection_configs (collection_id, key, value) VALUES (?, ?, ?)
			  ON CONFLICT(collection_id, key) DO UPDATE SET value = excluded.value`
	for key, value := range configValues(cfg) {
		if _, err := tx.ExecContext(ctx, query, collectionID, key, value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func configValues(cfg domain.CollectionConfig) map[string]string {
	return map[string]string{
		domain.ConfigRotationSeconds: strconv.Itoa(cfg.RotationSeconds),
		domain.ConfigPolaroid:        strconv.FormatBool(cfg.Polaroid),
		domain.ConfigModeration:      strconv.FormatBool(cfg.Moderation),
	}
}

// GetConfig returns the zero config when nothing was saved.
func (r *SQLiteRepository) GetConfig(ctx context.Context, collectionID string) (domain.CollectionConfig, error) {
	var cfg domain.CollectionConfig
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM collection_configs WHERE collection_id = ?`, collectionID)
	if err != nil {
		return cfg, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return cfg, err
		}
		switch key {
		case domain.ConfigRotationSeconds:
			cfg.RotationSeconds, _ = strconv.Atoi(value)
		case domain.ConfigPolaroid:
			cfg.Polaroid, _ = strconv.ParseBool(value)
		case domain.ConfigModeration:
			cfg.Moderation, _ = strconv.ParseBool(value)
		}
	}
	return cfg, rows.Err()
}

// Photos

// CreatePhoto stores item and assigns its Seq.
func (r *SQLiteRepository) CreatePhoto(ctx context.Context, item *domain.Item) error {
	query := `INSERT INTO photos (id, collection_id, image_url, visible, created_at) VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, item.ID, item.CollectionID, item.ImageURL, item.Visible, item.CreatedAt)
	if err != nil {
		return err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}
	item.Seq = seq
	return nil
}

const photoColumns = `seq, id, collection_id, image_url, visible, created_at`

func scanPhoto(s scanner) (*domain.Item, error) {
	var it domain.Item
	if err := s.Scan(&it.Seq, &it.ID, &it.CollectionID, &it.ImageURL, &it.Visible, &it.CreatedAt); err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *SQLiteRepository) GetPhoto(ctx context.Context, id string) (*domain.Item, error) {
	it, err := scanPhoto(r.db.QueryRowContext(ctx, `SELECT `+photoColumns+` FROM photos WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return it, err
}

func (r *SQLiteRepository) SetPhotoVisibility(ctx context.Context, id string, visible bool) (*domain.Item, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE photos SET visible = ? WHERE id = ?`, visible, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return r.GetPhoto(ctx, id)
}

func (r *SQLiteRepository) DeletePhoto(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, id)
	return err
}

func (r *SQLiteRepository) ListPhotos(ctx context.Context, collectionID string, visibleOnly bool) ([]domain.Item, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE collection_id = ?`
	if visibleOnly {
		query += ` AND visible = 1`
	}
	query += ` ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []domain.Item{}
	for rows.Next() {
		it, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// FetchSnapshot returns every photo of the collection, hidden ones included,
// in creation order.
func (r *SQLiteRepository) FetchSnapshot(ctx context.Context, collectionID string) ([]domain.Item, error) {
	return r.ListPhotos(ctx, collectionID, false)
}
