package provider

import (
	"context"
	"io"
	"time"
)

// FileInfo is the metadata of a file or directory as seen through a
// location, independent of the storage behind it.
type FileInfo interface {
	Name() string
	Size() int64
	IsDir() bool
	ModTime() time.Time
}

// Provider gives streaming access to one transfer location: a mounted
// share, a local directory or an S3 prefix. Paths are relative to the
// location root.
type Provider interface {
	// Stat returns the FileInfo for the given path.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List returns the direct children of the given directory.
	List(ctx context.Context, path string) ([]FileInfo, error)

	// OpenRead opens a file for streaming reads.
	OpenRead(ctx context.Context, path string) (io.ReadCloser, error)

	// OpenWrite creates or truncates a file for streaming writes. Metadata,
	// when supported, is applied on Close.
	OpenWrite(ctx context.Context, path string, metadata FileInfo) (io.WriteCloser, error)
}

type fileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (f *fileInfo) Name() string       { return f.name }
func (f *fileInfo) Size() int64        { return f.size }
func (f *fileInfo) IsDir() bool        { return f.isDir }
func (f *fileInfo) ModTime() time.Time { return f.modTime }

// NewFileInfo builds a FileInfo from raw values. It is used for payloads
// that do not live in any provider, such as multipart uploads.
func NewFileInfo(name string, size int64, modTime time.Time) FileInfo {
	return &fileInfo{name: name, size: size, modTime: modTime}
}

// SameFile reports whether path on a and path on b name the same stored
// file. A destination that does not exist yet is never the same file.
func SameFile(a Provider, aPath string, b Provider, bPath string) bool {
	switch pa := a.(type) {
	case *LocalProvider:
		pb, ok := b.(*LocalProvider)
		if !ok {
			return false
		}
		return pa.sameFile(aPath, pb, bPath)
	case *S3Provider:
		pb, ok := b.(*S3Provider)
		return ok && pa.bucket == pb.bucket && pa.buildKey(aPath) == pb.buildKey(bPath)
	}
	return false
}
