package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		ref     string
		bucket  string
		path    string
		wantErr bool
	}{
		{"sources/2024/schedule.csv", "sources", "2024/schedule.csv", false},
		{" sources/a.pdf ", "sources", "a.pdf", false},
		{"sources", "", "", true},
		{"/a.pdf", "", "", true},
		{"sources/", "", "", true},
		{"sources/../secrets", "", "", true},
		{"sources/a/../../b", "", "", true},
		{"sources//a.pdf", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			bucket, p, err := ParseRef(tt.ref)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.path, p)
		})
	}
}

func TestPaths(t *testing.T) {
	id := uuid.MustParse("6f1c1e1e-2f7b-4b7c-9d39-3f0f5d0e8a11")
	assert.Equal(t, "artifacts/6f1c1e1e-2f7b-4b7c-9d39-3f0f5d0e8a11/artifact.json", ArtifactPath(id))
	assert.Equal(t, "artifacts/6f1c1e1e-2f7b-4b7c-9d39-3f0f5d0e8a11/result.json", ResultPath(id))
}

func TestFSStore_PutGetList(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "sources", "2024/schedule.csv", []byte("section,frr\n"), "text/csv", false))
	require.NoError(t, s.Put(ctx, "sources", "2024/plan.pdf", []byte("%PDF"), "application/pdf", false))
	require.NoError(t, s.Put(ctx, "sources", "other.txt", []byte("x"), "", false))

	obj, err := s.Get(ctx, "sources", "2024/schedule.csv")
	require.NoError(t, err)
	assert.Equal(t, "section,frr\n", string(obj.Data))
	assert.Equal(t, "text/csv", obj.ContentType)
	assert.Equal(t, int64(12), obj.Size)

	paths, err := s.List(ctx, "sources", "2024/")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024/plan.pdf", "2024/schedule.csv"}, paths)

	all, err := s.List(ctx, "sources", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := s.List(ctx, "missing", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFSStore_Upsert(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "packs", "artifacts/j/result.json", []byte(`{"a":1}`), "application/json", true))
	assert.ErrorIs(t, s.Put(ctx, "packs", "artifacts/j/result.json", []byte(`{}`), "application/json", false), ErrExists)
	require.NoError(t, s.Put(ctx, "packs", "artifacts/j/result.json", []byte(`{"a":2}`), "application/json", true))

	obj, err := s.Get(ctx, "packs", "artifacts/j/result.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(obj.Data))
	assert.Equal(t, "application/json", obj.ContentType)

	paths, err := s.List(ctx, "packs", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"artifacts/j/result.json"}, paths, "temp files are never listed")
}

func TestFSStore_Errors(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewFSStore(root)
	require.NoError(t, err)

	_, err = s.Get(ctx, "sources", "nope.csv")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, "sources", "../../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidPath)

	assert.ErrorIs(t, s.Put(ctx, "../x", "a", nil, "", true), ErrInvalidPath)

	_, statErr := os.Stat(filepath.Join(root, "x"))
	assert.True(t, os.IsNotExist(statErr))
}
