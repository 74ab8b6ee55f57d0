package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"certverify/internal/verifier/models"
	"certverify/pkg/platform/sentinel"
	txcontext "certverify/pkg/platform/tx"
)

// PostgresStore persists results in the verification_results table. Open db
// with the pgx stdlib driver ("pgx").
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Save(ctx context.Context, result *models.Result) error {
	if result == nil || result.ID == uuid.Nil {
		return fmt.Errorf("result id is required")
	}
	steps, err := json.Marshal(result.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	var failedStep string
	failedCodes := []string{}
	if failed, ok := result.FailedStep(); ok {
		failedStep = failed.Code.String()
	}
	for _, st := range result.Steps {
		if st.Status == models.StatusFailure {
			failedCodes = append(failedCodes, st.Code.String())
		}
	}

	query := `
		INSERT INTO verification_results (
			id, document_id, proof_type, chain, subject,
			status, failed_step, message, failed_codes, steps, created_at,
			issuer_public_key
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		result.ID,
		result.DocumentID,
		result.ProofType,
		result.Chain,
		result.Subject,
		string(result.Verdict.Status),
		failedStep,
		result.Verdict.Message,
		pq.Array(failedCodes),
		steps,
		result.CreatedAt,
		result.IssuerPublicKey,
	)
	if err != nil {
		return fmt.Errorf("insert verification result: %w", err)
	}
	return nil
}

const selectResult = `
	SELECT id, document_id, proof_type, chain, subject, status, message, steps, created_at,
		issuer_public_key
	FROM verification_results
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*models.Result, error) {
	var (
		r       models.Result
		status  string
		message string
		steps   []byte
	)
	if err := row.Scan(&r.ID, &r.DocumentID, &r.ProofType, &r.Chain, &r.Subject,
		&status, &message, &steps, &r.CreatedAt, &r.IssuerPublicKey); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(steps, &r.Steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	r.Verdict = models.NewVerdict(models.Status(status), message)
	return &r, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Result, error) {
	row := s.db.QueryRowContext(ctx, selectResult+` WHERE id = $1`, id)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find verification result: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListByDocument(ctx context.Context, documentID string, limit int) ([]*models.Result, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		selectResult+` WHERE document_id = $1 ORDER BY created_at DESC LIMIT $2`,
		documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list verification results: %w", err)
	}
	defer rows.Close()

	var out []*models.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountFailuresByStep reports how many failed runs each step caused.
func (s *PostgresStore) CountFailuresByStep(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT failed_step, COUNT(*)
		FROM verification_results
		WHERE failed_step <> ''
		GROUP BY failed_step
	`)
	if err != nil {
		return nil, fmt.Errorf("count failures: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var step string
		var n int
		if err := rows.Scan(&step, &n); err != nil {
			return nil, err
		}
		out[step] = n
	}
	return out, rows.Err()
}
