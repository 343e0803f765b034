package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CreateWindowTable creates the rate limit table and its indexes if they do not exist.
func CreateWindowTable(ctx context.Context, pool *pgxpool.Pool, tableName string) error {
	table := pgx.Identifier{tableName}.Sanitize()
	keyIndex := pgx.Identifier{tableName + "_key_hash_unq"}.Sanitize()
	expiryIndex := pgx.Identifier{tableName + "_expires_at_idx"}.Sanitize()

	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				key_hash VARCHAR(64) NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0 CHECK (attempts >= 0),
				expires_at BIGINT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)
		`, table),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (key_hash)`, keyIndex, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (expires_at)`, expiryIndex, table),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create rate limit table %s: %w", tableName, err)
		}
	}

	return nil
}
