package clickhouse

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/ynkmn/reactoruq/internal/domain"
	"github.com/ynkmn/reactoruq/internal/pkg/database"
)

// drawBatchSize bounds the rows sent in one insert
const drawBatchSize = 10000

// DrawRepository stores posterior draws in ClickHouse
type DrawRepository struct {
	db *database.ClickHouseDB
}

// NewDrawRepository creates a new draw repository
func NewDrawRepository(db *database.ClickHouseDB) *DrawRepository {
	return &DrawRepository{db: db}
}

type drawRow struct {
	RunID            uuid.UUID `ch:"run_id"`
	Chain            uint16    `ch:"chain"`
	Iteration        uint32    `ch:"iteration"`
	Names            []string  `ch:"names"`
	Values           []float64 `ch:"values"`
	LogLikelihood    float64   `ch:"log_likelihood"`
	LogPosterior     float64   `ch:"log_posterior"`
	Accepted         bool      `ch:"accepted"`
	EvaluationFailed bool      `ch:"evaluation_failed"`
}

// InsertTraces writes every draw of the given chain traces
func (r *DrawRepository) InsertTraces(ctx context.Context, runID uuid.UUID, traces map[int]*domain.Trace) error {
	chains := make([]int, 0, len(traces))
	for c := range traces {
		chains = append(chains, c)
	}
	slices.Sort(chains)

	var records []domain.DrawRecord
	for _, c := range chains {
		t := traces[c]
		if t == nil {
			continue
		}
		for _, d := range t.Draws {
			records = append(records, domain.DrawRecord{RunID: runID, Chain: c, Draw: d})
		}
	}
	var names []string
	for _, c := range chains {
		if t := traces[c]; t != nil {
			names = t.Names
			break
		}
	}
	return r.InsertBatch(ctx, names, records)
}

// InsertBatch inserts draw records in chunks
func (r *DrawRepository) InsertBatch(ctx context.Context, names []string, records []domain.DrawRecord) error {
	for start := 0; start < len(records); start += drawBatchSize {
		chunk := records[start:min(start+drawBatchSize, len(records))]

		batch, err := r.db.PrepareBatch(ctx, `
			INSERT INTO draws (
				run_id, chain, iteration, names, values,
				log_likelihood, log_posterior, accepted, evaluation_failed
			)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare batch: %w", err)
		}

		for _, rec := range chunk {
			if err := batch.Append(
				rec.RunID,
				uint16(rec.Chain),
				uint32(rec.Iteration),
				names,
				rec.Values,
				rec.LogLikelihood,
				rec.LogPosterior,
				rec.Accepted,
				rec.EvaluationFailed,
			); err != nil {
				return fmt.Errorf("failed to append to batch: %w", err)
			}
		}

		if err := r.db.SendBatch(batch); err != nil {
			return fmt.Errorf("failed to send batch: %w", err)
		}
	}
	return nil
}

func (r *DrawRepository) selectRows(ctx context.Context, runID uuid.UUID, chain *int) ([]drawRow, error) {
	query := `
		SELECT run_id, chain, iteration, names, values,
			log_likelihood, log_posterior, accepted, evaluation_failed
		FROM draws
		WHERE run_id = ?`
	args := []any{runID}
	if chain != nil {
		query += ` AND chain = ?`
		args = append(args, uint16(*chain))
	}
	query += ` ORDER BY chain, iteration`

	var rows []drawRow
	if err := r.db.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list draws: %w", err)
	}
	return rows, nil
}

func (row drawRow) draw() domain.Draw {
	return domain.Draw{
		Iteration:        int(row.Iteration),
		Values:           row.Values,
		LogLikelihood:    row.LogLikelihood,
		LogPosterior:     row.LogPosterior,
		Accepted:         row.Accepted,
		EvaluationFailed: row.EvaluationFailed,
	}
}

// ListByRun returns the draws of a run ordered by chain and iteration. A
// non-nil chain restricts the result to that chain.
func (r *DrawRepository) ListByRun(ctx context.Context, runID uuid.UUID, chain *int) ([]domain.DrawRecord, error) {
	rows, err := r.selectRows(ctx, runID, chain)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DrawRecord, len(rows))
	for i, row := range rows {
		out[i] = domain.DrawRecord{RunID: row.RunID, Chain: int(row.Chain), Draw: row.draw()}
	}
	return out, nil
}

// Traces rebuilds sealed chain traces from stored draws.
func (r *DrawRepository) Traces(ctx context.Context, runID uuid.UUID) (map[int]*domain.Trace, error) {
	rows, err := r.selectRows(ctx, runID, nil)
	if err != nil {
		return nil, err
	}

	out := make(map[int]*domain.Trace)
	for _, row := range rows {
		t, ok := out[int(row.Chain)]
		if !ok {
			t = domain.NewTrace(row.Names, 0)
			out[int(row.Chain)] = t
		}
		if err := t.Append(row.draw()); err != nil {
			return nil, err
		}
	}
	for _, t := range out {
		t.Seal()
	}
	return out, nil
}

// DeleteByRun removes the draws of a run
func (r *DrawRepository) DeleteByRun(ctx context.Context, runID uuid.UUID) error {
	return r.db.Exec(ctx, `ALTER TABLE draws DELETE WHERE run_id = ?`, runID)
}
