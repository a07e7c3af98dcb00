package provider

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrEmptyLocation is returned when asked to resolve an empty location.
var ErrEmptyLocation = errors.New("empty location")

// Resolver turns the opaque location strings of a transfer request into
// Providers.
//
// Locations of the form s3://bucket/prefix map to an S3Provider. Anything
// else is a share or host name resolved on the local filesystem: joined
// under ShareRoot when one is configured (where network shares are
// mounted), used as a path otherwise.
type Resolver struct {
	ShareRoot        string
	PreserveMetadata bool
}

// NewResolver creates a Resolver for the given share mount root.
func NewResolver(shareRoot string, preserveMetadata bool) *Resolver {
	return &Resolver{ShareRoot: shareRoot, PreserveMetadata: preserveMetadata}
}

// Resolve returns a Provider rooted at location.
func (r *Resolver) Resolve(ctx context.Context, location string) (Provider, error) {
	if strings.TrimSpace(location) == "" {
		return nil, ErrEmptyLocation
	}

	if strings.HasPrefix(location, S3Scheme) {
		bucket, prefix, ok := ParseS3Location(location)
		if !ok {
			return nil, fmt.Errorf("invalid s3 location %q", location)
		}
		return NewS3Provider(ctx, bucket, prefix)
	}

	root, err := r.LocalPath(location)
	if err != nil {
		return nil, err
	}
	return NewLocalProvider(root).WithPreserveMetadata(r.PreserveMetadata), nil
}

// LocalPath maps a share location onto the local filesystem. A location
// that climbs out of ShareRoot is rejected with ErrOutsideRoot.
func (r *Resolver) LocalPath(location string) (string, error) {
	// UNC style "\\host\share" and "//host/share" both name the same share.
	location = strings.TrimLeft(strings.ReplaceAll(location, `\`, "/"), "/")
	if r.ShareRoot == "" {
		return filepath.Clean(string(filepath.Separator) + filepath.FromSlash(location)), nil
	}

	full := filepath.Join(r.ShareRoot, filepath.FromSlash(location))
	rel, err := filepath.Rel(r.ShareRoot, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, location)
	}
	return full, nil
}
