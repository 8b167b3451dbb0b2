// Command photowall-cli administers a photo wall database and drives walls
// against a running server.
//
//	photowall-cli slug "Ana & João"
//	photowall-cli export > dump.json
//	photowall-cli import --file dump.json
//	photowall-cli export-photos ana-joao -o photos.zip --server https://wall.example
//	photowall-cli watch ana-joao --server https://wall.example
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "photowall-cli",
		Short:        "Photo wall administration",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		buildSlugCmd(),
		buildExportCmd(),
		buildImportCmd(),
		buildExportPhotosCmd(),
		buildWatchCmd(),
		buildTokenCmd(),
	)
	return rootCmd
}
