package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/safescore/internal/pagination"
	"github.com/mbd888/safescore/migrations"
)

// PostgresStore persists wallet assessments in PostgreSQL. The scored
// assessment is kept as a JSONB body next to indexed headline columns.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate brings the schema up to date with the embedded goose
// migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migrations.Up(ctx, s.db)
}

func (s *PostgresStore) Record(ctx context.Context, a *WalletAssessment) error {
	body, err := json.Marshal(a.Assessment)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}
	summary, err := json.Marshal(a.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wallet_assessments (id, address, risk_score, risk_level, summary, assessment, duration_ms, assessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		a.ID,
		a.Address,
		a.Score(),
		string(a.Level()),
		summary,
		body,
		a.DurationMS,
		a.AssessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record wallet assessment: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, address, summary, assessment, duration_ms, assessed_at FROM wallet_assessments`

func (s *PostgresStore) ListByAddress(ctx context.Context, address string, before *pagination.Cursor, limit int) ([]*WalletAssessment, error) {
	if limit <= 0 {
		limit = MaxHistoryLimit + 1
	}

	var (
		rows *sql.Rows
		err  error
	)
	if before == nil {
		rows, err = s.db.QueryContext(ctx, selectColumns+`
			WHERE address = $1
			ORDER BY assessed_at DESC, id DESC
			LIMIT $2
		`, address, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, selectColumns+`
			WHERE address = $1 AND (assessed_at, id) < ($2, $3)
			ORDER BY assessed_at DESC, id DESC
			LIMIT $4
		`, address, before.At, before.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*WalletAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wallet assessments: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) Latest(ctx context.Context, address string) (*WalletAssessment, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+`
		WHERE address = $1
		ORDER BY assessed_at DESC, id DESC
		LIMIT 1
	`, address)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAssessment(sc scanner) (*WalletAssessment, error) {
	var (
		a          WalletAssessment
		summary    []byte
		body       []byte
		assessedAt time.Time
	)
	if err := sc.Scan(&a.ID, &a.Address, &summary, &body, &a.DurationMS, &assessedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan wallet assessment: %w", err)
	}
	a.AssessedAt = assessedAt
	if err := json.Unmarshal(summary, &a.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	if err := json.Unmarshal(body, &a.Assessment); err != nil {
		return nil, fmt.Errorf("failed to decode assessment: %w", err)
	}
	return &a, nil
}
