package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blakazulu/search-mcp/internal/config"
	"github.com/blakazulu/search-mcp/internal/errors"
	"github.com/blakazulu/search-mcp/internal/index"
	"github.com/blakazulu/search-mcp/internal/logging"
	"github.com/blakazulu/search-mcp/internal/search"
	"github.com/blakazulu/search-mcp/internal/ui"
)

var (
	flagTopK  int
	flagMode  string
	flagAlpha float64
	flagDocs  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the project index",
	Args:  cobra.MinimumNArgs(1),
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

		mgr := dual.Code
		if flagDocs {
			mgr = dual.Docs
		}
		if mgr.Vector().Count() == 0 {
			return errors.IndexNotFound()
		}

		engine, err := search.NewEngine(mgr.Vector(), mgr.FTS(), mgr.Embedder())
		if err != nil {
			return err
		}

		query := strings.Join(args, " ")
		mode := flagMode
		if mode == "" {
			mode = cfg.Search.Mode
		}
		alpha := flagAlpha
		if alpha == 0 {
			alpha = cfg.Search.Alpha
		}

		results, diag, err := engine.Search(cmd.Context(), query, search.Options{
			Mode:  search.Mode(mode),
			Alpha: alpha,
			TopK:  flagTopK,
		})
		if err != nil {
			return err
		}

		if diag.FTSUnavailable {
			fmt.Println(ui.Dim("keyword index unavailable, vector-only results"))
		}
		if len(results) == 0 {
			fmt.Println(ui.Dim("no results"))
			return nil
		}

		for i, r := range results {
			loc := fmt.Sprintf("%s:%d-%d", r.Path, r.StartLine, r.EndLine)
			fmt.Printf("%d. %s  %s\n", i+1, ui.Path(loc), ui.Score(r.Score))
			if name, ok := r.Metadata["name"].(string); ok {
				fmt.Printf("   %s\n", ui.Dim(name))
			}
			snippet := r.Text
			if idx := strings.IndexByte(snippet, '\n'); idx > 0 {
				snippet = snippet[:idx]
			}
			if len(snippet) > 120 {
				snippet = snippet[:120] + "..."
			}
			fmt.Printf("   %s\n", snippet)
		}
		fmt.Println(ui.Dim(fmt.Sprintf("%d results in %dms", len(results), diag.SearchTimeMs)))
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&flagTopK, "top", "k", 10, "number of results")
	searchCmd.Flags().StringVarP(&flagMode, "mode", "m", "", "vector, keyword, or hybrid")
	searchCmd.Flags().Float64VarP(&flagAlpha, "alpha", "a", 0, "vector weight (0-1)")
	searchCmd.Flags().BoolVar(&flagDocs, "docs", false, "search documentation instead of code")
	rootCmd.AddCommand(searchCmd)
}
