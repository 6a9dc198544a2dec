package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps blobs in the blobs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, bucket, p string) (*Object, error) {
	if err := validate(bucket, p); err != nil {
		return nil, err
	}
	var o Object
	err := s.pool.QueryRow(ctx,
		`SELECT data, content_type, size FROM blobs WHERE bucket = $1 AND path = $2`, bucket, p,
	).Scan(&o.Data, &o.ContentType, &o.Size)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, p, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return &o, nil
}

func (s *PostgresStore) Put(ctx context.Context, bucket, p string, data []byte, contentType string, upsert bool) error {
	if err := validate(bucket, p); err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	query := `INSERT INTO blobs (bucket, path, data, content_type, size) VALUES ($1, $2, $3, $4, $5)`
	if upsert {
		query += ` ON CONFLICT (bucket, path) DO UPDATE SET
		   data = EXCLUDED.data, content_type = EXCLUDED.content_type, size = EXCLUDED.size, updated_at = NOW()`
	} else {
		query += ` ON CONFLICT (bucket, path) DO NOTHING`
	}
	tag, err := s.pool.Exec(ctx, query, bucket, p, data, contentType, int64(len(data)))
	if err != nil {
		return fmt.Errorf("put blob: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", bucket, p, ErrExists)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT path FROM blobs WHERE bucket = $1 AND starts_with(path, $2) ORDER BY path`, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan blob paths: %w", err)
	}
	if paths == nil {
		paths = []string{}
	}
	return paths, nil
}

var _ Store = (*PostgresStore)(nil)
