package engine

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/franksops/filexfer/provider"
	"github.com/franksops/filexfer/store"
)

// Walker enumerates the files of one source directory.
type Walker struct {
	SourceProvider provider.Provider
}

// NewWalker creates a Walker over src.
func NewWalker(src provider.Provider) *Walker {
	return &Walker{SourceProvider: src}
}

// Enumerate lists the regular files directly under sourceDir and returns one
// job per file, in the order the provider lists them. Subdirectories are
// skipped, not descended into. Destination paths are destDir/<name>.
func (w *Walker) Enumerate(ctx context.Context, batchID, sourceDir, destDir string) ([]TransferJob, error) {
	stat, err := w.SourceProvider.Stat(ctx, sourceDir)
	if err != nil {
		return nil, ioError("stat source "+sourceDir, err)
	}
	if !stat.IsDir() {
		return nil, ioError("enumerate source", fmt.Errorf("%s is not a directory", sourceDir))
	}

	entries, err := w.SourceProvider.List(ctx, sourceDir)
	if err != nil {
		return nil, ioError("list source "+sourceDir, err)
	}

	jobs := make([]TransferJob, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		srcPath := filepath.Join(sourceDir, entry.Name())
		index := len(jobs)
		jobs = append(jobs, TransferJob{
			ID:              store.JobID(batchID, index),
			BatchID:         batchID,
			Index:           index,
			FileName:        entry.Name(),
			SourcePath:      srcPath,
			DestinationPath: filepath.Join(destDir, entry.Name()),
			FileInfo:        entry,
			Open: func(ctx context.Context) (io.ReadCloser, error) {
				return w.SourceProvider.OpenRead(ctx, srcPath)
			},
		})
	}
	return jobs, nil
}
