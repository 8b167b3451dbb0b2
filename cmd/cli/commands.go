package main

import (
	"time"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

func buildSlugCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "slug [name]",
		Short: "Print the slug base a collection name normalizes to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSlug(cmd, args[0])
		},
	}
}

func buildExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Dump collections, slug claims and photos as JSON to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd)
		},
	}
}

func buildImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Restore a JSON dump, skipping collections that already exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file to import")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func buildExportPhotosCmd() *cobra.Command {
	var server, output string
	cmd := &cobra.Command{
		Use:   "export-photos [slug]",
		Short: "Download the visible photos of a collection into a zip archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExportPhotos(cmd, server, args[0], output)
		},
	}
	cmd.Flags().StringVar(&server, "server", defaultServer, "Photo wall server URL")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Archive path (default <slug>.zip)")
	return cmd
}

func buildWatchCmd() *cobra.Command {
	var (
		server    string
		fallback  time.Duration
		firstTick time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch [slug]",
		Short: "Open a wall on a collection and print each photo as it is shown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := watchTimings(cmd, &fallback, &firstTick); err != nil {
				return err
			}
			return runWatch(cmd, server, args[0], fallback, firstTick)
		},
	}
	cmd.Flags().StringVar(&server, "server", defaultServer, "Photo wall server URL")
	cmd.Flags().DurationVar(&fallback, "interval", 0, "Rotation interval when the server sends none (default DEFAULT_ROTATION_INTERVAL)")
	cmd.Flags().DurationVar(&firstTick, "first-tick", 0, "Delay before the first rotation step (default FIRST_ROTATION_DELAY)")
	return cmd
}

func buildTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an admin API token with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, subject, ttl)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
