package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/securegate/internal/ratelimit"
)

// PostgresWindowTable is a PostgreSQL implementation of ratelimit.WindowTable.
type PostgresWindowTable struct {
	pool  *pgxpool.Pool
	table string // sanitized identifier
}

// NewPostgresWindowTable creates a window table backed by the named table.
func NewPostgresWindowTable(pool *pgxpool.Pool, tableName string) *PostgresWindowTable {
	return &PostgresWindowTable{
		pool:  pool,
		table: pgx.Identifier{tableName}.Sanitize(),
	}
}

func (p *PostgresWindowTable) FindByHash(ctx context.Context, hash string) (*ratelimit.WindowRow, error) {
	query := fmt.Sprintf(`
		SELECT id, key_hash, attempts, expires_at
		FROM %s
		WHERE key_hash = $1
	`, p.table)

	var row ratelimit.WindowRow

	err := p.pool.QueryRow(ctx, query, hash).Scan(
		&row.ID,
		&row.KeyHash,
		&row.Attempts,
		&row.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ratelimit.ErrRowNotFound
		}

		return nil, err
	}

	return &row, nil
}

func (p *PostgresWindowTable) Insert(ctx context.Context, row *ratelimit.WindowRow) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key_hash, attempts, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id
	`, p.table)

	return p.pool.QueryRow(ctx, query, row.KeyHash, row.Attempts, row.ExpiresAt).Scan(&row.ID)
}

func (p *PostgresWindowTable) UpdateByID(ctx context.Context, id, attempts, expiresAt int64) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET attempts = $2, expires_at = $3, updated_at = now()
		WHERE id = $1
	`, p.table)

	tag, err := p.pool.Exec(ctx, query, id, attempts, expiresAt)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update id %d: %w", id, ratelimit.ErrRowNotFound)
	}

	return nil
}

// Increment counts a hit in one statement: it creates the row, resets an
// expired window, or increments an active one. Concurrent hits on the same
// key are serialized by the row lock taken by ON CONFLICT.
func (p *PostgresWindowTable) Increment(
	ctx context.Context, hash string, now time.Time, window time.Duration,
) (*ratelimit.WindowRow, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s AS w (key_hash, attempts, expires_at, created_at, updated_at)
		VALUES ($1, 1, $2, now(), now())
		ON CONFLICT (key_hash) DO UPDATE SET
			attempts = CASE WHEN w.expires_at <= $3 THEN 1 ELSE w.attempts + 1 END,
			expires_at = CASE WHEN w.expires_at <= $3 THEN EXCLUDED.expires_at ELSE w.expires_at END,
			updated_at = now()
		RETURNING id, key_hash, attempts, expires_at
	`, p.table)

	var row ratelimit.WindowRow

	err := p.pool.QueryRow(ctx, query, hash, now.Add(window).Unix(), now.Unix()).Scan(
		&row.ID,
		&row.KeyHash,
		&row.Attempts,
		&row.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	return &row, nil
}

// Compile-time checks.
var (
	_ ratelimit.WindowTable       = (*PostgresWindowTable)(nil)
	_ ratelimit.WindowIncrementer = (*PostgresWindowTable)(nil)
)
