package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/xuecangming/file-manager/internal/common/types"
	"github.com/xuecangming/file-manager/internal/core/retry"
	"github.com/xuecangming/file-manager/internal/infrastructure/storage"
	"github.com/xuecangming/file-manager/internal/metrics"
)

// RecentLimit caps the RECENT_FILES listing
const RecentLimit = 200

// MediaRepository reads and maintains the media_index table
type MediaRepository struct {
	db    *sql.DB
	retry *retry.Config
}

// NewMediaRepository creates a new media index repository
func NewMediaRepository(db *sql.DB) *MediaRepository {
	return &MediaRepository{db: db, retry: retry.DefaultConfig()}
}

const mediaColumns = `path, id, name, bucket, size, mime_type, mod_time, date_taken`

// buildQuery returns the SELECT statement and arguments for a query type
func buildQuery(q types.QueryType) (string, []interface{}, error) {
	base := `SELECT ` + mediaColumns + ` FROM media_index `
	switch q {
	case types.QueryAllImages:
		return base + `WHERE NOT trashed AND mime_type LIKE 'image/%'
			ORDER BY COALESCE(date_taken, mod_time) DESC, path`, nil, nil
	case types.QueryAllVideos:
		return base + `WHERE NOT trashed AND mime_type LIKE 'video/%'
			ORDER BY mod_time DESC, path`, nil, nil
	case types.QueryAllAudio:
		return base + `WHERE NOT trashed AND mime_type LIKE 'audio/%'
			ORDER BY name, path`, nil, nil
	case types.QueryAllDocuments:
		return base + `WHERE NOT trashed AND (mime_type LIKE 'text/%' OR mime_type = ANY($1))
			ORDER BY mod_time DESC, path`, []interface{}{pq.Array(storage.DocumentTypes)}, nil
	case types.QueryRecentFiles:
		return base + `WHERE NOT trashed
			ORDER BY mod_time DESC, path
			LIMIT $1`, []interface{}{RecentLimit}, nil
	case types.QueryRecycleBin:
		return base + `WHERE trashed
			ORDER BY indexed_at DESC, path`, nil, nil
	}
	return "", nil, fmt.Errorf("unknown query type %q", q)
}

// isTransient reports whether err is a connection-level failure worth
// retrying
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08: connection exception, 57P01..57P03: server shutting down
		return pqErr.Code.Class() == "08" || strings.HasPrefix(string(pqErr.Code), "57P0")
	}
	return false
}

// escapeLike escapes LIKE metacharacters in s
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Query lists the indexed media of a query type
func (r *MediaRepository) Query(ctx context.Context, q types.QueryType) ([]types.MediaInfo, error) {
	query, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { metrics.RecordIndexQuery(string(q), time.Since(start)) }()

	var items []types.MediaInfo
	err = retry.DoWithContextAndRetryable(ctx, func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		items = items[:0]
		for rows.Next() {
			var m types.MediaInfo
			var taken sql.NullTime
			if err := rows.Scan(
				&m.Path, &m.ID, &m.DisplayName, &m.Bucket, &m.Size,
				&m.MimeType, &m.ModTime, &taken,
			); err != nil {
				return err
			}
			if taken.Valid {
				t := taken.Time.UTC()
				m.DateTaken = &t
			}
			m.ModTime = m.ModTime.UTC()
			m.URI = storage.ContentURIPrefix + m.ID
			items = append(items, m)
		}
		return rows.Err()
	}, r.retry, isTransient)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Upsert inserts or refreshes the index entry of a file
func (r *MediaRepository) Upsert(ctx context.Context, m types.MediaInfo) error {
	query := `
		INSERT INTO media_index (
			path, id, name, bucket, size, mime_type, mod_time, date_taken, trashed, indexed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (path) DO UPDATE SET
			name = EXCLUDED.name,
			bucket = EXCLUDED.bucket,
			size = EXCLUDED.size,
			mime_type = EXCLUDED.mime_type,
			mod_time = EXCLUDED.mod_time,
			date_taken = EXCLUDED.date_taken,
			trashed = EXCLUDED.trashed,
			indexed_at = NOW()
	`

	var taken interface{}
	if m.DateTaken != nil {
		taken = *m.DateTaken
	}

	return retry.DoWithContextAndRetryable(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, query,
			m.Path, m.ID, m.DisplayName, m.Bucket, m.Size,
			m.MimeType, m.ModTime, taken, storage.InTrash(m.Path),
		)
		return err
	}, r.retry, isTransient)
}

// DeleteTree removes path and everything below it from the index
func (r *MediaRepository) DeleteTree(ctx context.Context, path string) error {
	query := `DELETE FROM media_index WHERE path = $1 OR path LIKE $2`
	prefix := escapeLike(strings.TrimSuffix(path, "/")) + "/%"

	return retry.DoWithContextAndRetryable(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, query, path, prefix)
		return err
	}, r.retry, isTransient)
}

// Trash moves the entry at from to its recycle bin location to
func (r *MediaRepository) Trash(ctx context.Context, from, to string) error {
	query := `
		UPDATE media_index
		SET path = $2, trashed = TRUE, indexed_at = NOW()
		WHERE path = $1
	`

	return retry.DoWithContextAndRetryable(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, query, from, to)
		return err
	}, r.retry, isTransient)
}

// ListAfter pages through every entry in path order, starting after the
// given path
func (r *MediaRepository) ListAfter(ctx context.Context, after string, limit int) ([]types.MediaInfo, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_index
		WHERE path > $1
		ORDER BY path
		LIMIT $2`

	var items []types.MediaInfo
	err := retry.DoWithContextAndRetryable(ctx, func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, query, after, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		items = items[:0]
		for rows.Next() {
			var m types.MediaInfo
			var taken sql.NullTime
			if err := rows.Scan(
				&m.Path, &m.ID, &m.DisplayName, &m.Bucket, &m.Size,
				&m.MimeType, &m.ModTime, &taken,
			); err != nil {
				return err
			}
			if taken.Valid {
				t := taken.Time.UTC()
				m.DateTaken = &t
			}
			items = append(items, m)
		}
		return rows.Err()
	}, r.retry, isTransient)
	if err != nil {
		return nil, err
	}
	return items, nil
}
