// Package blob is the opaque object store holding source documents and the
// per-job artifact and result packs.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("blob not found")
	ErrExists      = errors.New("blob already exists")
	ErrInvalidPath = errors.New("invalid blob path")
)

// Object is a stored blob.
type Object struct {
	Data        []byte
	ContentType string
	Size        int64
}

// Store gets, puts and lists blobs addressed by bucket and path.
type Store interface {
	Get(ctx context.Context, bucket, path string) (*Object, error)
	// Put writes data. Without upsert an existing object yields ErrExists.
	Put(ctx context.Context, bucket, path string, data []byte, contentType string, upsert bool) error
	// List returns the sorted paths in bucket that start with prefix.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// ParseRef splits a "bucket/path" source reference.
func ParseRef(ref string) (bucket, p string, err error) {
	ref = strings.TrimSpace(ref)
	bucket, p, ok := strings.Cut(ref, "/")
	if !ok || bucket == "" || p == "" {
		return "", "", fmt.Errorf("%w: %q must be bucket/path", ErrInvalidPath, ref)
	}
	if err := validate(bucket, p); err != nil {
		return "", "", err
	}
	return bucket, p, nil
}

// validate rejects names that would escape the bucket.
func validate(bucket, p string) error {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return fmt.Errorf("%w: bucket %q", ErrInvalidPath, bucket)
	}
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	if clean := path.Clean(p); clean != p || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return nil
}

// ArtifactPath is where a job's artifact pack is stored.
func ArtifactPath(jobID uuid.UUID) string {
	return "artifacts/" + jobID.String() + "/artifact.json"
}

// ResultPath is where a job's extraction result or import summary is stored.
func ResultPath(jobID uuid.UUID) string {
	return "artifacts/" + jobID.String() + "/result.json"
}
