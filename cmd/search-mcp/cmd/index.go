package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/blakazulu/search-mcp/internal/config"
	"github.com/blakazulu/search-mcp/internal/index"
	"github.com/blakazulu/search-mcp/internal/logging"
	"github.com/blakazulu/search-mcp/internal/ui"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or rebuild the project index",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectRoot()
		if err != nil {
			return err
		}
		cfg, err := config.Load(root)
		if err != nil {
			return err
		}
		if err := logging.Init(index.DirFor(root), logLevel()); err != nil {
			return err
		}
		defer logging.Reset()

		dual, err := index.OpenDual(cmd.Context(), root, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = dual.Close() }()

		started := time.Now()
		var lastPhase index.Phase
		files, chunks, err := dual.FullIndex(cmd.Context(), func(p index.Progress) {
			if !ui.IsTTY() {
				return
			}
			if p.Phase != lastPhase {
				if lastPhase != "" {
					fmt.Println()
				}
				lastPhase = p.Phase
			}
			fmt.Print(ui.ProgressLine(string(p.Phase), p.Current, p.Total))
		})
		if ui.IsTTY() && lastPhase != "" {
			fmt.Println()
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, ui.Error("indexing failed"))
			return err
		}

		fmt.Printf("%s %d files, %d chunks in %s\n",
			ui.Success("indexed"), files, chunks, time.Since(started).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
