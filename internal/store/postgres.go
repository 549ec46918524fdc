package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Postgres implements Store on a single kv_store table managed by the
// migrations package.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var value []byte
	err := p.db.GetContext(ctx, &value,
		`SELECT value FROM kv_store WHERE bucket=$1 AND key=$2`, bucket, key)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: postgres get: %w", err)
	}
	return value, nil
}

func (p *Postgres) Put(ctx context.Context, bucket, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO kv_store (bucket, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (bucket, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, bucket, key, value)
	if err != nil {
		return fmt.Errorf("store: postgres put: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, bucket, key string) error {
	if _, err := p.db.ExecContext(ctx,
		`DELETE FROM kv_store WHERE bucket=$1 AND key=$2`, bucket, key); err != nil {
		return fmt.Errorf("store: postgres delete: %w", err)
	}
	return nil
}

func (p *Postgres) Scan(ctx context.Context, bucket, prefix string) (map[string][]byte, error) {
	rows, err := p.db.QueryxContext(ctx,
		`SELECT key, value FROM kv_store WHERE bucket=$1 AND key LIKE $2 || '%'`, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("store: postgres scan: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("store: postgres scan row: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}
