package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
)

// SlugClaim is a reserved slug, including the retired slugs of renamed collections.
type SlugClaim struct {
	Slug         string    `json:"slug"`
	CollectionID string    `json:"collection_id"`
	ClaimedAt    time.Time `json:"claimed_at"`
}

// Dump is the full content of the store, used for migrations between databases.
type Dump struct {
	Collections []domain.Collection `json:"collections"`
	Claims      []SlugClaim         `json:"slug_claims"`
	Photos      []domain.Item       `json:"photos"`
}

// RestoreStats counts what Restore inserted and skipped.
type RestoreStats struct {
	Collections int
	Photos      int
	Skipped     int
}

func (r *SQLiteRepository) Dump(ctx context.Context) (*Dump, error) {
	d := &Dump{}

	rows, err := r.db.QueryContext(ctx, `SELECT `+collectionColumns+` FROM collections ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		d.Collections = append(d.Collections, *c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range d.Collections {
		cfg, err := r.GetConfig(ctx, d.Collections[i].ID)
		if err != nil {
			return nil, err
		}
		d.Collections[i].Config = cfg
	}

	rows, err = r.db.QueryContext(ctx, `SELECT slug, collection_id, claimed_at FROM collection_slugs ORDER BY claimed_at`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var c SlugClaim
		if err := rows.Scan(&c.Slug, &c.CollectionID, &c.ClaimedAt); err != nil {
			rows.Close()
			return nil, err
		}
		d.Claims = append(d.Claims, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.QueryContext(ctx, `SELECT `+photoColumns+` FROM photos ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		d.Photos = append(d.Photos, *it)
	}
	return d, rows.Err()
}

// Restore inserts the content of d. Collections whose id or slug already
// exist, including a slug still claimed by another collection, are skipped
// together with their photos. Photos get new sequence
// numbers in their original relative order.
func (r *SQLiteRepository) Restore(ctx context.Context, d *Dump) (RestoreStats, error) {
	var stats RestoreStats
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	restored := make(map[string]bool)
	for _, c := range d.Collections {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT collection_id FROM collection_slugs WHERE slug = ?`, c.Slug).Scan(&owner)
		switch {
		case err == nil && owner != c.ID:
			stats.Skipped++
			continue
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return stats, err
		}

		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO collections (id, slug, name, upload_url, event_date, description, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, c.ID, c.Slug, c.Name, c.UploadURL, c.EventDate, c.Description, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return stats, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			stats.Skipped++
			continue
		}
		restored[c.ID] = true
		stats.Collections++

		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO collection_slugs (slug, collection_id, claimed_at) VALUES (?, ?, ?)`,
			c.Slug, c.ID, c.CreatedAt); err != nil {
			return stats, err
		}
		for key, value := range configValues(c.Config) {
			if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO collection_configs (collection_id, key, value) VALUES (?, ?, ?)`,
				c.ID, key, value); err != nil {
				return stats, err
			}
		}
	}

	for _, claim := range d.Claims {
		if !restored[claim.CollectionID] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO collection_slugs (slug, collection_id, claimed_at) VALUES (?, ?, ?)`,
			claim.Slug, claim.CollectionID, claim.ClaimedAt); err != nil {
			return stats, err
		}
	}

	for _, it := range d.Photos {
		if !restored[it.CollectionID] {
			continue
		}
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO photos (id, collection_id, image_url, visible, created_at) VALUES (?, ?, ?, ?, ?)`,
			it.ID, it.CollectionID, it.ImageURL, it.Visible, it.CreatedAt)
		if err != nil {
			return stats, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			stats.Photos++
		}
	}
	return stats, tx.Commit()
}
