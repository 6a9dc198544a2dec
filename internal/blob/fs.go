package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FSStore keeps each bucket as a directory under root. Content types are
// derived from the file extension on read.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) file(bucket, p string) (string, error) {
	if err := validate(bucket, p); err != nil {
		return "", err
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(p)), nil
}

func (s *FSStore) Get(_ context.Context, bucket, p string) (*Object, error) {
	name, err := s.file(bucket, p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, p, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return &Object{Data: data, ContentType: contentTypeFor(p), Size: int64(len(data))}, nil
}

func (s *FSStore) Put(_ context.Context, bucket, p string, data []byte, _ string, upsert bool) error {
	name, err := s.file(bucket, p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	if !upsert {
		if _, err := os.Stat(name); err == nil {
			return fmt.Errorf("%s/%s: %w", bucket, p, ErrExists)
		}
	}

	// Write then rename so readers never see a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(name), ".blob-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		return fmt.Errorf("commit blob: %w", err)
	}
	return nil
}

func (s *FSStore) List(_ context.Context, bucket, prefix string) ([]string, error) {
	if err := validate(bucket, "x"); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, bucket)
	out := []string{}
	err := filepath.WalkDir(dir, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".blob-") {
			return nil
		}
		rel, err := filepath.Rel(dir, name)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

func contentTypeFor(p string) string {
	ext := strings.ToLower(filepath.Ext(p))
	switch ext {
	case ".csv":
		return "text/csv"
	case ".tsv":
		return "text/tab-separated-values"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

var _ Store = (*FSStore)(nil)
