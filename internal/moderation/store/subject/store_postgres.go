package subject

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"nucleus/internal/moderation/models"
	"nucleus/pkg/platform/sentinel"
)

// PostgresStore keeps one row per subject. Every write is a single upsert, so
// concurrent joins from different nodes never lose an increment.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const profileColumns = `subject_id, last_name, last_address, names, addresses,
	times_joined, times_kicked, play_time_ms, online_since, first_seen, last_seen`

func (s *PostgresStore) RecordJoin(ctx context.Context, subject models.Subject, at time.Time) error {
	query := `
		INSERT INTO subjects (subject_id, last_name, last_address, names, addresses, times_joined, online_since, first_seen, last_seen)
		VALUES ($1, $2::text, $3::text,
			CASE WHEN $2::text = '' THEN '{}'::text[] ELSE ARRAY[$2::text] END,
			CASE WHEN $3::text = '' THEN '{}'::text[] ELSE ARRAY[$3::text] END,
			1, $4, $4, $4)
		ON CONFLICT (subject_id) DO UPDATE SET
			last_name = CASE WHEN EXCLUDED.last_name = '' THEN subjects.last_name ELSE EXCLUDED.last_name END,
			last_address = CASE WHEN EXCLUDED.last_address = '' THEN subjects.last_address ELSE EXCLUDED.last_address END,
			names = CASE WHEN EXCLUDED.last_name = '' OR EXCLUDED.last_name = ANY(subjects.names)
				THEN subjects.names ELSE array_append(subjects.names, EXCLUDED.last_name) END,
			addresses = CASE WHEN EXCLUDED.last_address = '' OR EXCLUDED.last_address = ANY(subjects.addresses)
				THEN subjects.addresses ELSE array_append(subjects.addresses, EXCLUDED.last_address) END,
			times_joined = subjects.times_joined + 1,
			online_since = COALESCE(subjects.online_since, EXCLUDED.online_since),
			last_seen = EXCLUDED.last_seen
	`
	name := strings.TrimSpace(subject.Name)
	address := models.NormalizeAddress(subject.Fingerprint)
	_, err := s.db.ExecContext(ctx, query, string(subject.ID), name, address, at)
	if err != nil {
		return fmt.Errorf("record subject join: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) RecordLeave(ctx context.Context, subject models.SubjectID, at time.Time) error {
	query := `
		INSERT INTO subjects (subject_id, first_seen, last_seen)
		VALUES ($1, $2, $2)
		ON CONFLICT (subject_id) DO UPDATE SET
			play_time_ms = subjects.play_time_ms + CASE
				WHEN subjects.online_since IS NOT NULL AND EXCLUDED.last_seen > subjects.online_since
				THEN (EXTRACT(EPOCH FROM (EXCLUDED.last_seen - subjects.online_since)) * 1000)::BIGINT
				ELSE 0 END,
			online_since = NULL,
			last_seen = EXCLUDED.last_seen
	`
	if _, err := s.db.ExecContext(ctx, query, string(subject), at); err != nil {
		return fmt.Errorf("record subject leave: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) RecordKick(ctx context.Context, subject models.SubjectID, at time.Time) error {
	query := `
		INSERT INTO subjects (subject_id, times_kicked, first_seen)
		VALUES ($1, 1, $2)
		ON CONFLICT (subject_id) DO UPDATE SET
			times_kicked = subjects.times_kicked + 1
	`
	if _, err := s.db.ExecContext(ctx, query, string(subject), at); err != nil {
		return fmt.Errorf("record subject kick: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, subject models.SubjectID) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM subjects WHERE subject_id = $1`, string(subject))
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("subject %s: %w", subject, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("read subject: %w: %w", sentinel.ErrUnavailable, err)
	}
	return p, nil
}

func (s *PostgresStore) FindByAddress(ctx context.Context, address string) ([]models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM subjects
		WHERE $1::text = ANY(addresses)
		ORDER BY last_seen DESC NULLS LAST, subject_id`
	rows, err := s.db.QueryContext(ctx, query, models.NormalizeAddress(address))
	if err != nil {
		return nil, fmt.Errorf("find subjects by address: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()

	var out []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w: %w", sentinel.ErrUnavailable, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*models.Profile, error) {
	var (
		p           models.Profile
		id          string
		playTimeMS  int64
		onlineSince sql.NullTime
		lastSeen    sql.NullTime
	)
	err := row.Scan(&id, &p.LastName, &p.LastAddress, pq.Array(&p.Names), pq.Array(&p.Addresses),
		&p.TimesJoined, &p.TimesKicked, &playTimeMS, &onlineSince, &p.FirstSeen, &lastSeen)
	if err != nil {
		return nil, err
	}
	p.ID = models.SubjectID(id)
	p.PlayTime = time.Duration(playTimeMS) * time.Millisecond
	if onlineSince.Valid {
		since := onlineSince.Time
		p.OnlineSince = &since
	}
	if lastSeen.Valid {
		p.LastSeen = lastSeen.Time
	}
	if p.Names == nil {
		p.Names = []string{}
	}
	if p.Addresses == nil {
		p.Addresses = []string{}
	}
	return &p, nil
}
