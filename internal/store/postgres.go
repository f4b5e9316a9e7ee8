package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"shareonair/internal/share"
)

var _ share.Store = (*PostgresStore)(nil)

const (
	uniqueViolation   = "23505"
	codeConstraint    = "shares_code_key"
	shareColumns      = `id, code, kind, content, blob_ref, file_name, file_size, views, max_views, created_at, expires_at`
	selectShareByCode = `SELECT ` + shareColumns + ` FROM shares WHERE code = $1`
)

// PostgresStore keeps shares in the "shares" table created by the
// migrations in internal/db. The unique constraint on code is the
// authoritative duplicate check.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, sh *share.Share) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shares (`+shareColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		sh.ID,
		share.NormalizeCode(sh.Code),
		string(sh.Kind),
		nullString(sh.Content),
		nullString(sh.BlobRef),
		nullString(sh.FileName),
		sql.NullInt64{Int64: sh.FileSize, Valid: sh.Kind == share.KindFile},
		sh.Views,
		sh.MaxViews,
		sh.CreatedAt.UTC(),
		sh.ExpiresAt.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == codeConstraint {
			return share.ErrDuplicateCode
		}
		return share.Unavailable("insert share", err)
	}
	return nil
}

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*share.Share, error) {
	sh, err := scanShare(s.db.QueryRowContext(ctx, selectShareByCode, share.NormalizeCode(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, share.ErrNotFound
		}
		return nil, share.Unavailable("find share", err)
	}
	return sh, nil
}

// IncrementViews adds a view in one conditional UPDATE so concurrent
// callers each observe a distinct count and never pass max_views.
func (s *PostgresStore) IncrementViews(ctx context.Context, id uuid.UUID) (*share.Share, error) {
	sh, err := scanShare(s.db.QueryRowContext(ctx, `
		UPDATE shares SET views = views + 1
		WHERE id = $1 AND views < max_views
		RETURNING `+shareColumns, id))
	if err == nil {
		return sh, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, share.Unavailable("increment views", err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM shares WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, share.Unavailable("increment views", err)
	}
	if exists {
		return nil, share.ErrQuotaExhausted
	}
	return nil, share.ErrNotFound
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM shares WHERE id = $1`, id); err != nil {
		return share.Unavailable("delete share", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpiredBefore(ctx context.Context, t time.Time) ([]share.Share, error) {
	rows, err := s.db.QueryContext(ctx, `
		DELETE FROM shares
		WHERE expires_at < $1
		RETURNING `+shareColumns, t.UTC())
	if err != nil {
		return nil, share.Unavailable("delete expired", err)
	}
	defer rows.Close()

	var removed []share.Share
	for rows.Next() {
		sh, err := scanShare(rows)
		if err != nil {
			return removed, share.Unavailable("scan expired", err)
		}
		removed = append(removed, *sh)
	}
	if err := rows.Err(); err != nil {
		return removed, share.Unavailable("delete expired", err)
	}
	return removed, nil
}

func (s *PostgresStore) HasBlobRef(ctx context.Context, ref string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM shares WHERE blob_ref = $1)`, ref).Scan(&exists)
	if err != nil {
		return false, share.Unavailable("lookup blob ref", err)
	}
	return exists, nil
}

func (s *PostgresStore) Stats(ctx context.Context, now time.Time) (share.Stats, error) {
	var st share.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE kind = 'text'),
			COUNT(*) FILTER (WHERE kind = 'file'),
			COALESCE(SUM(views), 0),
			COALESCE(SUM(file_size) FILTER (WHERE kind = 'file'), 0)
		FROM shares
		WHERE expires_at > $1
	`, now.UTC()).Scan(&st.TotalShares, &st.TextShares, &st.FileShares, &st.TotalViews, &st.TotalFileSizeBytes)
	if err != nil {
		return share.Stats{}, share.Unavailable("aggregate stats", err)
	}
	return st, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShare(row rowScanner) (*share.Share, error) {
	var (
		sh       share.Share
		kind     string
		content  sql.NullString
		blobRef  sql.NullString
		fileName sql.NullString
		fileSize sql.NullInt64
	)
	err := row.Scan(
		&sh.ID,
		&sh.Code,
		&kind,
		&content,
		&blobRef,
		&fileName,
		&fileSize,
		&sh.Views,
		&sh.MaxViews,
		&sh.CreatedAt,
		&sh.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	sh.Kind = share.Kind(kind)
	sh.Content = content.String
	sh.BlobRef = blobRef.String
	sh.FileName = fileName.String
	sh.FileSize = fileSize.Int64
	sh.CreatedAt = sh.CreatedAt.UTC()
	sh.ExpiresAt = sh.ExpiresAt.UTC()
	return &sh, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
