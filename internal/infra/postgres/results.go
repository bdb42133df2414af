package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"competition-service/internal/domain"
)

type resultRow struct {
	bun.BaseModel `bun:"table:competition_results"`

	CompetitionID string     `bun:"competition_id,pk"`
	Title         string     `bun:"title"`
	TestID        string     `bun:"test_id"`
	StartedAt     *time.Time `bun:"started_at"`
	EndedAt       *time.Time `bun:"ended_at"`
	Standings     []byte     `bun:"standings,type:jsonb"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,default:now()"`
}

// ResultsWriter persists final standings via bun. Upserting on the
// competition id keeps retried writes idempotent.
type ResultsWriter struct {
	db *bun.DB
}

func NewResultsWriter(db *bun.DB) *ResultsWriter {
	return &ResultsWriter{db: db}
}

func (w *ResultsWriter) WriteResult(ctx context.Context, result domain.CompetitionResult) error {
	standings, err := json.Marshal(result.Entries)
	if err != nil {
		return fmt.Errorf("marshal standings: %w", err)
	}

	row := &resultRow{
		CompetitionID: result.CompetitionID,
		Title:         result.Title,
		TestID:        result.TestID,
		StartedAt:     result.StartedAt,
		EndedAt:       result.EndedAt,
		Standings:     standings,
	}

	_, err = w.db.NewInsert().
		Model(row).
		On("CONFLICT (competition_id) DO UPDATE").
		Set("standings = EXCLUDED.standings").
		Set("ended_at = EXCLUDED.ended_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
