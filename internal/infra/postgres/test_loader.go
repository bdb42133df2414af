package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"competition-service/internal/domain"
)

// TestLoader loads test JSONB from Postgres.
type TestLoader struct {
	pool *pgxpool.Pool
}

func NewTestLoader(pool *pgxpool.Pool) *TestLoader {
	return &TestLoader{pool: pool}
}

func (l *TestLoader) LoadTest(ctx context.Context, testID string) (domain.Test, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM tests WHERE id=$1`, testID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Test{}, domain.ErrTestNotFound
	}
	if err != nil {
		return domain.Test{}, fmt.Errorf("load test: %w", err)
	}
	var test domain.Test
	if err := json.Unmarshal(raw, &test); err != nil {
		return domain.Test{}, fmt.Errorf("unmarshal test: %w", err)
	}
	return test, nil
}
