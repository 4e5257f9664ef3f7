package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/talkingphoto/pipeline/internal/domain/model"
)

// ErrJobNotFound is returned when a job is not found.
var ErrJobNotFound = errors.New("job not found")

// RepoConfig holds configuration options for the data repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for generation jobs.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = SystemClock{}
	}
	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  request,
  step,
  status,
  plan,
  original_provider,
  fallback_provider,
  provider_job_id,
  retry_count,
  accrued_cost,
  refunded_credits,
  quality_metrics,
  optimization,
  progress_percent,
  result_path,
  result_url,
  cancel_requested,
  cancel_reason,
  last_error,
  created_at,
  started_at,
  completed_at
`

// Create inserts a new generation job.
func (r *JobRepo) Create(ctx context.Context, job *model.GenerationJob) error {
	request, plan, quality, err := marshalJobFields(job)
	if err != nil {
		return err
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO generation_jobs (
		  id, request, step, status, plan,
		  original_provider, fallback_provider, provider_job_id,
		  retry_count, accrued_cost, refunded_credits,
		  quality_metrics, optimization, progress_percent,
		  result_path, result_url, last_error,
		  created_at, started_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		job.ID, request, job.Step, job.Status, plan,
		nullIfEmpty(job.OriginalProvider), nullIfEmpty(job.FallbackProvider), nullIfEmpty(job.ProviderJobID),
		job.RetryCount, job.AccruedCost, job.RefundedCredits,
		quality, nullRaw(job.Optimization), job.ProgressPercent,
		nullIfEmpty(job.ResultPath), nullIfEmpty(job.ResultURL), job.LastError,
		job.CreatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert generation job: %w", err)
	}
	return nil
}

// GetByID fetches a job by id.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.GenerationJob, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1`, id)
	return scanJob(row)
}

// Update persists the full mutable state of a job.
func (r *JobRepo) Update(ctx context.Context, job *model.GenerationJob) error {
	request, plan, quality, err := marshalJobFields(job)
	if err != nil {
		return err
	}

	result, err := r.DB.ExecContext(ctx, `
		UPDATE generation_jobs SET
		  request = $2,
		  step = $3,
		  status = $4,
		  plan = $5,
		  original_provider = $6,
		  fallback_provider = $7,
		  provider_job_id = $8,
		  retry_count = $9,
		  accrued_cost = $10,
		  refunded_credits = $11,
		  quality_metrics = $12,
		  optimization = $13,
		  progress_percent = $14,
		  result_path = $15,
		  result_url = $16,
		  last_error = $17,
		  started_at = $18,
		  completed_at = $19,
		  updated_at = $20
		WHERE id = $1`,
		job.ID, request, job.Step, job.Status, plan,
		nullIfEmpty(job.OriginalProvider), nullIfEmpty(job.FallbackProvider), nullIfEmpty(job.ProviderJobID),
		job.RetryCount, job.AccruedCost, job.RefundedCredits,
		quality, nullRaw(job.Optimization), job.ProgressPercent,
		nullIfEmpty(job.ResultPath), nullIfEmpty(job.ResultURL), job.LastError,
		job.StartedAt, job.CompletedAt, r.timeProvider.Now(),
	)
	if err != nil {
		return fmt.Errorf("update generation job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update generation job rows affected: %w", err)
	}
	if rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ReserveNext atomically claims the oldest pending job and moves it to
// processing. FOR UPDATE SKIP LOCKED keeps concurrent workers from fighting
// over the same row.
func (r *JobRepo) ReserveNext(ctx context.Context) (*model.GenerationJob, error) {
	now := r.timeProvider.Now()
	row := r.DB.QueryRowContext(ctx, `
		WITH cte AS (
		  SELECT id FROM generation_jobs
		  WHERE status = 'pending' AND NOT cancel_requested
		  ORDER BY created_at ASC
		  LIMIT 1
		  FOR UPDATE SKIP LOCKED
		)
		UPDATE generation_jobs j
		SET status = 'processing',
		    started_at = COALESCE(j.started_at, $1),
		    updated_at = $1
		FROM cte
		WHERE j.id = cte.id
		RETURNING `+prefixColumns("j", jobColumns), now)

	job, err := scanJob(row)
	if errors.Is(err, ErrJobNotFound) {
		return nil, model.ErrNoJobsAvailable
	}
	return job, err
}

// RequestCancel flags a non-terminal job for cancellation.
func (r *JobRepo) RequestCancel(ctx context.Context, id, reason string) (bool, error) {
	result, err := r.DB.ExecContext(ctx, `
		UPDATE generation_jobs
		SET cancel_requested = TRUE,
		    cancel_reason = $2,
		    updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'processing')`,
		id, reason, r.timeProvider.Now())
	if err != nil {
		return false, fmt.Errorf("request cancel: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("request cancel rows affected: %w", err)
	}
	return rows > 0, nil
}

// CancelRequested reports whether the cancel flag is set for a job.
func (r *JobRepo) CancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT cancel_requested FROM generation_jobs WHERE id = $1`, id).Scan(&requested)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrJobNotFound
	}
	if err != nil {
		return false, fmt.Errorf("query cancel flag: %w", err)
	}
	return requested, nil
}

// ListByUser returns the user's jobs, newest first.
func (r *JobRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.GenerationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM generation_jobs
		WHERE request->>'user_id' = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs by user: %w", err)
	}
	defer rows.Close()

	var jobs []*model.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// RecordTransition appends one audit row.
func (r *JobRepo) RecordTransition(ctx context.Context, t *model.JobTransition) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO job_transitions (job_id, from_status, to_status, step, detail, at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		t.JobID, t.FromStatus, t.ToStatus, t.Step, t.Detail, t.At)
	if err != nil {
		return fmt.Errorf("insert job transition: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.GenerationJob, error) {
	var (
		job              model.GenerationJob
		request          []byte
		plan             []byte
		quality          []byte
		optimization     []byte
		originalProvider sql.NullString
		fallbackProvider sql.NullString
		providerJobID    sql.NullString
		resultPath       sql.NullString
		resultURL        sql.NullString
		cancelRequested  bool
		cancelReason     sql.NullString
		startedAt        sql.NullTime
		completedAt      sql.NullTime
	)
	err := row.Scan(
		&job.ID, &request, &job.Step, &job.Status, &plan,
		&originalProvider, &fallbackProvider, &providerJobID,
		&job.RetryCount, &job.AccruedCost, &job.RefundedCredits,
		&quality, &optimization, &job.ProgressPercent,
		&resultPath, &resultURL, &cancelRequested, &cancelReason,
		&job.LastError, &job.CreatedAt, &startedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan generation job: %w", err)
	}

	if err := json.Unmarshal(request, &job.Request); err != nil {
		return nil, fmt.Errorf("decode job request: %w", err)
	}
	if len(plan) > 0 {
		if err := json.Unmarshal(plan, &job.Plan); err != nil {
			return nil, fmt.Errorf("decode job plan: %w", err)
		}
	}
	if len(quality) > 0 {
		if err := json.Unmarshal(quality, &job.Quality); err != nil {
			return nil, fmt.Errorf("decode job quality metrics: %w", err)
		}
	}
	job.Optimization = optimization
	job.OriginalProvider = originalProvider.String
	job.FallbackProvider = fallbackProvider.String
	job.ProviderJobID = providerJobID.String
	job.ResultPath = resultPath.String
	job.ResultURL = resultURL.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

func marshalJobFields(job *model.GenerationJob) (request, plan, quality []byte, err error) {
	request, err = json.Marshal(job.Request)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode job request: %w", err)
	}
	plan, err = json.Marshal(job.Plan)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode job plan: %w", err)
	}
	quality, err = json.Marshal(job.Quality)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode job quality metrics: %w", err)
	}
	return request, plan, quality, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// prefixColumns qualifies each column in a comma-separated list with a table
// alias for RETURNING clauses.
func prefixColumns(alias, columns string) string {
	out := ""
	for i, col := range splitColumns(columns) {
		if i > 0 {
			out += ", "
		}
		out += alias + "." + col
	}
	return out
}

func splitColumns(columns string) []string {
	var out []string
	current := ""
	for _, r := range columns {
		switch r {
		case ',':
			if current != "" {
				out = append(out, current)
				current = ""
			}
		case ' ', '\n', '\t':
		default:
			current += string(r)
		}
	}
	if current != "" {
		out = append(out, current)
	}
	return out
}
