package restriction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"nucleus/internal/moderation/models"
	"nucleus/pkg/platform/sentinel"
)

// PostgresStore persists restrictions as JSONB documents keyed by
// (subject_id, kind, scope). Filter columns are denormalized next to the
// document so active lookups never decode inactive rows.
//
// This store is pure I/O: revision assignment and conflict handling belong to
// the facade and synchronizer.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Upsert performs the revision-gated write as a single statement. The
// conditional DO UPDATE leaves the row untouched (0 rows affected) when the
// stored revision is equal or newer.
func (s *PostgresStore) Upsert(ctx context.Context, r models.Restriction) (bool, error) {
	doc, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("marshal restriction: %w", err)
	}
	query := `
		INSERT INTO restrictions (subject_id, kind, scope, revision, revoked, expires_at, document, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (subject_id, kind, scope) DO UPDATE SET
			revision = EXCLUDED.revision,
			revoked = EXCLUDED.revoked,
			expires_at = EXCLUDED.expires_at,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
		WHERE restrictions.revision < EXCLUDED.revision
	`
	result, err := s.db.ExecContext(ctx, query,
		string(r.Subject.ID),
		string(r.Kind),
		string(r.Scope),
		int64(r.Revision),
		r.Revoked,
		nullTime(r.ExpiresAt),
		doc,
	)
	if err != nil {
		return false, fmt.Errorf("upsert restriction: %w: %w", sentinel.ErrUnavailable, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert restriction rows affected: %w: %w", sentinel.ErrUnavailable, err)
	}
	return rows > 0, nil
}

func (s *PostgresStore) FindActive(ctx context.Context, subject models.SubjectID, now time.Time) ([]models.Restriction, error) {
	query := `
		SELECT document FROM restrictions
		WHERE subject_id = $1
		  AND NOT revoked
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY kind, scope
	`
	rows, err := s.db.QueryContext(ctx, query, string(subject), now)
	if err != nil {
		return nil, fmt.Errorf("find active restrictions: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// FindActiveFor returns active restrictions for several subjects in one round trip.
func (s *PostgresStore) FindActiveFor(ctx context.Context, subjects []models.SubjectID, now time.Time) ([]models.Restriction, error) {
	if len(subjects) == 0 {
		return nil, nil
	}
	ids := make([]string, len(subjects))
	for i, subject := range subjects {
		ids[i] = string(subject)
	}
	query := `
		SELECT document FROM restrictions
		WHERE subject_id = ANY($1)
		  AND NOT revoked
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY subject_id, kind, scope
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids), now)
	if err != nil {
		return nil, fmt.Errorf("find active restrictions batch: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *PostgresStore) ListActive(ctx context.Context, now time.Time) ([]models.Restriction, error) {
	query := `
		SELECT document FROM restrictions
		WHERE NOT revoked
		  AND (expires_at IS NULL OR expires_at > $1)
		ORDER BY subject_id, kind, scope
	`
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list active restrictions: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *PostgresStore) CurrentRevision(ctx context.Context, key models.Key) (uint64, error) {
	var revision int64
	err := s.db.QueryRowContext(ctx,
		`SELECT revision FROM restrictions WHERE subject_id = $1 AND kind = $2 AND scope = $3`,
		string(key.Subject), string(key.Kind), string(key.Scope),
	).Scan(&revision)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read current revision: %w: %w", sentinel.ErrUnavailable, err)
	}
	return uint64(revision), nil
}

// AppendHistory is idempotent per (key, revision) so bus redeliveries never
// duplicate audit rows.
func (s *PostgresStore) AppendHistory(ctx context.Context, r models.Restriction) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal restriction: %w", err)
	}
	query := `
		INSERT INTO restriction_history (subject_id, kind, scope, revision, document, recorded_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (subject_id, kind, scope, revision) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		string(r.Subject.ID),
		string(r.Kind),
		string(r.Scope),
		int64(r.Revision),
		doc,
	)
	if err != nil {
		return fmt.Errorf("append restriction history: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, subject models.SubjectID) ([]models.Restriction, error) {
	query := `
		SELECT document FROM restriction_history
		WHERE subject_id = $1
		ORDER BY recorded_at DESC, revision DESC
	`
	rows, err := s.db.QueryContext(ctx, query, string(subject))
	if err != nil {
		return nil, fmt.Errorf("query restriction history: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]models.Restriction, error) {
	var out []models.Restriction
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan restriction: %w", err)
		}
		var r models.Restriction
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, fmt.Errorf("decode restriction document: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restrictions: %w: %w", sentinel.ErrUnavailable, err)
	}
	return out, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
