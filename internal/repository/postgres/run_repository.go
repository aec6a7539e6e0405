package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ynkmn/reactoruq/internal/domain"
	"github.com/ynkmn/reactoruq/internal/pkg/database"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
	"github.com/ynkmn/reactoruq/internal/pkg/id"
	"github.com/ynkmn/reactoruq/internal/pkg/pagination"
)

// RunRepository handles inference run data operations in PostgreSQL
type RunRepository struct {
	db *database.PostgresDB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *database.PostgresDB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, name, model_name, model_path, algorithm, status, config, error,
	export_uri, summary, created_at, started_at, completed_at`

// Create inserts a new run
func (r *RunRepository) Create(ctx context.Context, run *domain.Run) error {
	query := `
		INSERT INTO runs (id, name, model_name, model_path, algorithm, status, config, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		run.ID,
		run.Name,
		run.ModelName,
		run.ModelPath,
		run.Algorithm,
		string(run.Status),
		nullJSON(run.Config),
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// UpdateStatus moves a run to status. Entering running stamps started_at;
// entering a finished status stamps completed_at.
func (r *RunRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RunStatus, message string) error {
	query := `
		UPDATE runs
		SET status = $2,
			error = $3,
			started_at = CASE WHEN $2 = 'running' THEN COALESCE(started_at, NOW()) ELSE started_at END,
			completed_at = CASE WHEN $2 IN ('completed', 'partial', 'failed') THEN NOW() ELSE completed_at END
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, string(status), message)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("run")
	}
	return nil
}

// SaveResults stores the chain outcomes and summary and finishes the run in
// one transaction.
func (r *RunRepository) SaveResults(ctx context.Context, run *domain.Run) error {
	summary, err := marshalSummary(run.Summary)
	if err != nil {
		return err
	}

	return database.Transaction(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM chain_results WHERE run_id = $1`, run.ID); err != nil {
			return fmt.Errorf("failed to clear chain results: %w", err)
		}

		batch := &pgx.Batch{}
		for _, c := range run.Chains {
			batch.Queue(`
				INSERT INTO chain_results (
					run_id, chain, seed, state, draws_requested, draws_completed,
					evaluations, failed_evaluations, acceptance_rate, step_size,
					abort_iteration, abort_reason, duration_ms
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
				run.ID,
				c.Chain,
				strconv.FormatUint(c.Seed, 10),
				string(c.State),
				c.DrawsRequested,
				c.DrawsCompleted,
				c.Evaluations,
				c.FailedEvaluations,
				c.AcceptanceRate,
				c.StepSize,
				c.AbortIteration,
				c.AbortReason,
				c.DurationMs,
			)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("failed to insert chain results: %w", err)
			}
		}

		tag, err := tx.Exec(ctx, `
			UPDATE runs
			SET status = $2, error = $3, export_uri = $4, summary = $5,
				completed_at = COALESCE($6, NOW())
			WHERE id = $1`,
			run.ID, string(run.Status), run.Error, run.ExportURI, summary, run.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to finish run: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperrors.NotFound("run")
		}
		return nil
	})
}

// GetByID retrieves a run with its chain outcomes
func (r *RunRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("run")
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	chains, err := r.chainOutcomes(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Chains = chains
	return run, nil
}

func (r *RunRepository) chainOutcomes(ctx context.Context, id uuid.UUID) ([]domain.ChainOutcome, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT run_id, chain, seed, state, draws_requested, draws_completed,
			evaluations, failed_evaluations, acceptance_rate, step_size,
			abort_iteration, abort_reason, duration_ms
		FROM chain_results
		WHERE run_id = $1
		ORDER BY chain
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list chain results: %w", err)
	}
	defer rows.Close()

	var out []domain.ChainOutcome
	for rows.Next() {
		var (
			c     domain.ChainOutcome
			seed  string
			state string
		)
		if err := rows.Scan(
			&c.RunID, &c.Chain, &seed, &state, &c.DrawsRequested, &c.DrawsCompleted,
			&c.Evaluations, &c.FailedEvaluations, &c.AcceptanceRate, &c.StepSize,
			&c.AbortIteration, &c.AbortReason, &c.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chain result: %w", err)
		}
		c.Seed, _ = strconv.ParseUint(seed, 10, 64)
		c.State = domain.ChainState(state)
		out = append(out, c)
	}
	return out, rows.Err()
}

// List retrieves runs newest first. The cursor is the NextCursor of the
// previous page.
func (r *RunRepository) List(ctx context.Context, filter *domain.RunFilter, limit int, cursor string) (*domain.RunList, error) {
	limit = pagination.ClampLimit(limit)
	after, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error())
	}

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter != nil {
		if filter.Status != nil {
			conds = append(conds, "status = "+arg(string(*filter.Status)))
		}
		if filter.ModelName != "" {
			conds = append(conds, "model_name = "+arg(filter.ModelName))
		}
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM runs`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	if after != nil {
		afterID, err := id.ParseUUID(after.ID)
		if err != nil {
			return nil, apperrors.BadRequest("invalid cursor id")
		}
		cond := "(created_at, id) < (" + arg(after.Timestamp) + ", " + arg(afterID) + ")"
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
	}

	query := `SELECT ` + runColumns + ` FROM runs` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ` + arg(limit+1)
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	list := &domain.RunList{TotalCount: total}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		list.Runs = append(list.Runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	if len(list.Runs) > limit {
		list.Runs = list.Runs[:limit]
		last := list.Runs[limit-1]
		list.HasMore = true
		list.NextCursor = pagination.NewCursor(last.ID.String(), last.CreatedAt).Encode()
	}
	return list, nil
}

func scanRun(row pgx.Row) (*domain.Run, error) {
	var (
		run     domain.Run
		status  string
		config  []byte
		summary []byte
	)
	err := row.Scan(
		&run.ID,
		&run.Name,
		&run.ModelName,
		&run.ModelPath,
		&run.Algorithm,
		&status,
		&config,
		&run.Error,
		&run.ExportURI,
		&summary,
		&run.CreatedAt,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	if len(config) > 0 {
		run.Config = config
	}
	if len(summary) > 0 {
		var s domain.Summary
		if err := json.Unmarshal(summary, &s); err != nil {
			return nil, fmt.Errorf("failed to decode run summary: %w", err)
		}
		run.Summary = &s
	}
	return &run, nil
}

func marshalSummary(s *domain.Summary) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run summary: %w", err)
	}
	return data, nil
}

func nullJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
