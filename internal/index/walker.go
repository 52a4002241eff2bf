package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blakazulu/search-mcp/internal/errors"
	"github.com/blakazulu/search-mcp/internal/policy"
)

// Traversal bounds. Exceeding the result cap is a resource-limit error;
// the depth cap stops descent with a warning.
const (
	MaxDirectoryDepth  = 20
	MaxWalkResults     = 100000
	DefaultWalkTimeout = 30 * time.Second
)

// WalkedFile is one file discovered by the bounded walk.
type WalkedFile struct {
	AbsPath string
	RelPath string // forward-slashed
	Size    int64
	MTimeNS int64
}

// WalkOptions bounds the traversal.
type WalkOptions struct {
	MaxDepth   int
	MaxResults int
	Timeout    time.Duration
}

func (o WalkOptions) withDefaults() WalkOptions {
	if o.MaxDepth <= 0 || o.MaxDepth > MaxDirectoryDepth {
		o.MaxDepth = MaxDirectoryDepth
	}
	if o.MaxResults <= 0 || o.MaxResults > MaxWalkResults {
		o.MaxResults = MaxWalkResults
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultWalkTimeout
	}
	return o
}

// WalkProject discovers indexable files under root according to the
// policy. Traversal stops with a warning past MaxDepth, aborts with
// RESOURCE_LIMIT past MaxResults, and is cancelled by the hard timeout.
// Symlinks are skipped with a warning.
func WalkProject(ctx context.Context, root string, pol *policy.Policy, opts WalkOptions) ([]WalkedFile, error) {
	opts = opts.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var files []WalkedFile
	var depthWarned bool

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Cancelled("project scan timed out", ctxErr)
		}
		if walkErr != nil {
			slog.Warn("walk error, skipping entry",
				slog.String("path", errors.SanitizePathIn(path, root)),
				slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		depth := strings.Count(rel, "/") + 1
		if d.IsDir() {
			if depth >= opts.MaxDepth {
				if !depthWarned {
					depthWarned = true
					slog.Warn("directory depth limit reached, not descending",
						slog.String("dir", rel),
						slog.Int("limit", opts.MaxDepth))
				}
				return filepath.SkipDir
			}
			if !pol.ShouldDescend(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are skipped during indexing; explicit-file
		// operations reject them with an error instead.
		if d.Type()&fs.ModeSymlink != 0 {
			slog.Warn("skipping symlink", slog.String("path", rel))
			return nil
		}

		decision := pol.ShouldIndex(path, rel)
		if !decision.Include {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		files = append(files, WalkedFile{
			AbsPath: path,
			RelPath: rel,
			Size:    info.Size(),
			MTimeNS: info.ModTime().UnixNano(),
		})
		if len(files) > opts.MaxResults {
			return errors.ResourceLimit("scan result count", opts.MaxResults)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeFileNotFound, "project root not found", err)
		}
		return nil, err
	}
	return files, nil
}
