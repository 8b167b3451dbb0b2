package main

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/adapters/feed"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/adapters/remote"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/config"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/domain"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/gallery"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/slug"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/observability"
)

func runSlug(cmd *cobra.Command, name string) error {
	base := slug.Normalize(name)
	if base == "" {
		return domain.ErrInvalidName
	}
	fmt.Fprintln(cmd.OutOrStdout(), base)
	return nil
}

func openRepo() (*sqlite.SQLiteRepository, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	repo, err := sqlite.NewSQLiteRepository(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	return repo, nil
}

func runExport(cmd *cobra.Command) error {
	repo, err := openRepo()
	if err != nil {
		return err
	}
	defer repo.Close()

	dump, err := repo.Dump(cmd.Context())
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(dump)
}

func runImport(cmd *cobra.Command, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	var dump sqlite.Dump
	if err := json.NewDecoder(file).Decode(&dump); err != nil {
		return fmt.Errorf("decode %s: %w", filename, err)
	}

	repo, err := openRepo()
	if err != nil {
		return err
	}
	defer repo.Close()

	stats, err := repo.Restore(cmd.Context(), &dump)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d collections and %d photos, skipped %d existing collections\n",
		stats.Collections, stats.Photos, stats.Skipped)
	return nil
}

func runExportPhotos(cmd *cobra.Command, server, slugName, output string) error {
	ctx := cmd.Context()
	client := remote.NewClient(server, gallery.DefaultInterval)

	collection, err := client.Collection(ctx, slugName)
	if err != nil {
		return err
	}
	items, err := client.FetchSnapshot(ctx, collection.ID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("collection %s has no photos", slugName)
	}

	if output == "" {
		output = slugName + ".zip"
	}
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	n, werr := writeArchive(ctx, f, items, client.Download)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(output)
		return werr
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d photos to %s\n", n, output)
	return nil
}

type downloadFunc func(ctx context.Context, url string, w io.Writer) error

// writeArchive stores the visible items as foto_1.jpg, foto_2.jpg, ... in
// display order and returns the number written.
func writeArchive(ctx context.Context, w io.Writer, items []domain.Item, download downloadFunc) (int, error) {
	zw := zip.NewWriter(w)
	n := 0
	for _, item := range items {
		if !item.Visible {
			continue
		}
		n++
		entry, err := zw.Create(fmt.Sprintf("foto_%d.jpg", n))
		if err != nil {
			return n, err
		}
		if err := download(ctx, item.ImageURL, entry); err != nil {
			return n, fmt.Errorf("photo %s: %w", item.ID, err)
		}
	}
	return n, zw.Close()
}

// watchTimings fills the timing flags left unset from DEFAULT_ROTATION_INTERVAL
// and FIRST_ROTATION_DELAY.
func watchTimings(cmd *cobra.Command, interval, firstTick *time.Duration) error {
	flags := cmd.Flags()
	if flags.Changed("interval") && flags.Changed("first-tick") {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !flags.Changed("interval") {
		*interval = cfg.DefaultRotationInterval
	}
	if !flags.Changed("first-tick") {
		*firstTick = cfg.FirstRotationDelay
	}
	return nil
}

func runWatch(cmd *cobra.Command, server, slugName string, fallback, firstTick time.Duration) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(observability.LogConfig{Level: os.Getenv("LOG_LEVEL"), Output: cmd.ErrOrStderr()})
	client := remote.NewClient(server, fallback)
	collection, err := client.Collection(ctx, slugName)
	if err != nil {
		return err
	}
	feedClient := feed.NewClient(server)
	feedClient.Logger = logger

	out := cmd.OutOrStdout()
	w, err := gallery.Open(ctx, gallery.Config{
		CollectionID:    collection.ID,
		Loader:          client,
		Feed:            feedClient,
		Settings:        client,
		FirstTick:       firstTick,
		DefaultInterval: fallback,
		OnShow: func(item domain.Item) {
			fmt.Fprintf(out, "%s\t%s\n", time.Now().Format(time.TimeOnly), item.ImageURL)
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.WaitReady(ctx); err != nil {
		return err
	}
	if w.View().Empty() {
		fmt.Fprintf(out, "%s has no photos yet, waiting\n", collection.Name)
	}
	<-ctx.Done()
	return nil
}

func runToken(cmd *cobra.Command, subject string, ttl time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	token, err := handler.IssueToken(cfg.JWTSecret, subject, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
