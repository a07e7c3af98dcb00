package provider

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path escapes the provider's root.
var ErrOutsideRoot = errors.New("path escapes location root")

// LocalProvider implements Provider for directories reachable through the
// local filesystem, including mounted network shares.
type LocalProvider struct {
	basePath         string
	preserveMetadata bool
}

// NewLocalProvider creates a LocalProvider rooted at basePath.
// If basePath is empty, paths are used as given.
func NewLocalProvider(basePath string) *LocalProvider {
	return &LocalProvider{basePath: basePath}
}

// WithPreserveMetadata makes OpenWrite copy permission bits and mtime from
// the source metadata when the written file is closed.
func (p *LocalProvider) WithPreserveMetadata(preserve bool) *LocalProvider {
	p.preserveMetadata = preserve
	return p
}

// Root returns the directory the provider is rooted at.
func (p *LocalProvider) Root() string {
	return p.basePath
}

func (p *LocalProvider) resolve(path string) (string, error) {
	if p.basePath == "" {
		return path, nil
	}
	full := filepath.Join(p.basePath, filepath.Clean(string(filepath.Separator)+path))
	rel, err := filepath.Rel(p.basePath, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return full, nil
}

func (p *LocalProvider) Stat(ctx context.Context, path string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := p.resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, err
	}

	return WrapOSFileInfo(info), nil
}

// List returns the directory entries in name order, the order os.ReadDir
// yields them.
func (p *LocalProvider) List(ctx context.Context, path string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := p.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, err
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue // removed between ReadDir and Info
		}
		infos = append(infos, WrapOSFileInfo(info))
	}
	return infos, nil
}

func (p *LocalProvider) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := p.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(fullPath)
}

// OpenWrite truncates any existing file at path. The parent directory must
// already exist: a missing destination share is an error, not something to
// create silently.
func (p *LocalProvider) OpenWrite(ctx context.Context, path string, metadata FileInfo) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := p.resolve(path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	lw := &localWriteCloser{File: file, fullPath: fullPath}
	if p.preserveMetadata {
		lw.metadata = metadata
	}
	return lw, nil
}

// localWriteCloser applies metadata after the content is flushed, since
// writing updates mtime.
type localWriteCloser struct {
	*os.File
	fullPath string
	metadata FileInfo
}

func (l *localWriteCloser) Close() error {
	if err := l.File.Close(); err != nil {
		return err
	}
	// Metadata is best effort; shares frequently refuse chmod.
	_ = ApplyMetadata(l.fullPath, l.metadata)
	return nil
}

func (p *LocalProvider) sameFile(path string, other *LocalProvider, otherPath string) bool {
	full, err := p.resolve(path)
	if err != nil {
		return false
	}
	otherFull, err := other.resolve(otherPath)
	if err != nil {
		return false
	}

	fi, err := os.Stat(full)
	if err != nil {
		return false
	}
	otherFi, err := os.Stat(otherFull)
	if err != nil {
		return false
	}
	return os.SameFile(fi, otherFi)
}
