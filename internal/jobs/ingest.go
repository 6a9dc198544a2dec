package jobs

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// IngestParams describes a document uploaded directly rather than referenced
// in the blob store.
type IngestParams struct {
	Filename    string
	Data        []byte
	ContentType string
	Mode        models.JobMode
	ProjectID   *uuid.UUID
}

// Ingest stores an uploaded document under uploads/ in the artifact bucket,
// submits a job for it and runs the first attempt.
func (s *Service) Ingest(ctx context.Context, p IngestParams) (*RunResult, error) {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(p.Filename), `\`, "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		return nil, invalid("file name is required")
	}
	if len(p.Data) == 0 {
		return nil, invalid("file is empty")
	}

	key := "uploads/" + uuid.NewString() + "/" + name
	if err := s.blobs.Put(ctx, s.bucket, key, p.Data, p.ContentType, false); err != nil {
		return nil, newError(models.ErrCodeUploadFailed, fmt.Errorf("store upload: %w", err))
	}

	job, err := s.Submit(ctx, SubmitParams{
		SourceRef: s.bucket + "/" + key,
		Mode:      p.Mode,
		ProjectID: p.ProjectID,
	})
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, job.ID)
}
