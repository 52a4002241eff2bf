// Package cmd implements the search-mcp CLI.
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blakazulu/search-mcp/internal/errors"
)

var (
	flagProject string
	flagDebug   bool
)

var rootCmd = &cobra.Command{
	Use:   "search-mcp",
	Short: "Local hybrid code search over MCP",
	Long: `search-mcp indexes a project directory into a local hybrid search
engine (semantic vectors + BM25 keywords) and serves it to MCP clients
over stdio.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "p", "", "project root (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

// projectRoot resolves the project directory flag.
func projectRoot() (string, error) {
	dir := flagProject
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.New(errors.ErrCodeInvalidPath, "cannot resolve project directory", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", errors.New(errors.ErrCodeProjectNotDetected, "project directory not found: "+errors.SanitizePath(abs), err)
	}
	return abs, nil
}

func logLevel() string {
	if flagDebug {
		return "debug"
	}
	return "info"
}
