package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/blakazulu/search-mcp/internal/index"
	"github.com/blakazulu/search-mcp/internal/state"
	"github.com/blakazulu/search-mcp/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status for the project",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectRoot()
		if err != nil {
			return err
		}

		indexDir := index.DirFor(root)
		meta, err := state.LoadMetadata(filepath.Join(indexDir, index.MetadataFile))
		if err != nil {
			return err
		}
		if meta == nil {
			fmt.Println(ui.Dim("no index found — run `search-mcp index` first"))
			return nil
		}

		snap := meta.Snapshot()
		fmt.Println(ui.Title("index status"))
		fmt.Printf("  project:  %s\n", ui.Path(root))
		fmt.Printf("  files:    %d\n", snap.Stats.TotalFiles)
		fmt.Printf("  chunks:   %d\n", snap.Stats.TotalChunks)
		if snap.Stats.FailedChunkCount > 0 {
			fmt.Printf("  failed:   %d chunks skipped\n", snap.Stats.FailedChunkCount)
		}
		if !snap.LastFullIndex.IsZero() {
			fmt.Printf("  full:     %s\n", snap.LastFullIndex.Local().Format(time.RFC822))
		}
		if !snap.LastIncrementalUpdate.IsZero() {
			fmt.Printf("  updated:  %s\n", snap.LastIncrementalUpdate.Local().Format(time.RFC822))
		}
		if snap.EmbeddingModel != "" {
			fmt.Printf("  model:    %s (%dd)\n", snap.EmbeddingModel, snap.EmbeddingDimensions)
		}
		if vi := snap.VectorIndex; vi != nil {
			fmt.Printf("  vindex:   %s p=%d sv=%d\n", vi.IndexType, vi.NumPartitions, vi.NumSubVectors)
		}

		var size int64
		_ = filepath.Walk(indexDir, func(_ string, info os.FileInfo, err error) error {
			if err == nil && !info.IsDir() {
				size += info.Size()
			}
			return nil
		})
		fmt.Printf("  storage:  %.1f MB\n", float64(size)/(1024*1024))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
