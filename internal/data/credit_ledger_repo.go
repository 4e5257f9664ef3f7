package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/talkingphoto/pipeline/internal/core"
)

// CreditLedgerRepo implements core.CreditLedger over an append-only Postgres
// ledger. Idempotency comes from a unique (job_id, direction, reason)
// constraint: replaying a deduct or refund after a crash is a no-op instead
// of a double entry.
type CreditLedgerRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewCreditLedgerRepo creates a new CreditLedgerRepo.
func NewCreditLedgerRepo(db *sql.DB, cfg RepoConfig) *CreditLedgerRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = SystemClock{}
	}
	return &CreditLedgerRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

// Balance sums the user's ledger: grants and refunds add, deductions subtract.
func (r *CreditLedgerRepo) Balance(ctx context.Context, userID string) (float64, error) {
	var balance float64
	err := r.DB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(
		  CASE WHEN direction = 'debit' THEN -credits ELSE credits END
		), 0)
		FROM credit_ledger
		WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("query credit balance: %w", err)
	}
	return balance, nil
}

// Deduct appends a debit entry. Replays with the same (job, reason) are
// silent no-ops.
func (r *CreditLedgerRepo) Deduct(ctx context.Context, params core.DeductParams) error {
	return r.append(ctx, "debit", params.UserID, params.JobID, params.Credits, params.Reason)
}

// Refund appends a credit entry. Replays with the same (job, reason) are
// silent no-ops.
func (r *CreditLedgerRepo) Refund(ctx context.Context, params core.RefundParams) error {
	return r.append(ctx, "credit", params.UserID, params.JobID, params.Credits, params.Reason)
}

func (r *CreditLedgerRepo) append(ctx context.Context, direction, userID, jobID string, credits float64, reason string) error {
	if credits < 0 {
		return errors.New("credits must be non-negative")
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO credit_ledger (user_id, job_id, direction, credits, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		userID, jobID, direction, credits, reason, r.timeProvider.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			if r.logger != nil {
				r.logger.DebugContext(ctx, "ledger entry already applied",
					"job_id", jobID, "direction", direction, "reason", reason)
			}
			return nil
		}
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}
