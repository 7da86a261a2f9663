package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"veritrail/internal/compliance/models"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

// PostgresStore persists compliance checkpoints. The statistics snapshot is
// stored as a JSONB document since it is written once and never queried by
// individual count.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const checkpointColumns = `
	id, tenant_id, name, subject_type, subject_id, requirement, status,
	statistics, expires_at, created_at, verified_at, verified_by
`

func (s *PostgresStore) Create(ctx context.Context, c *models.Checkpoint) error {
	statistics, err := json.Marshal(c.Statistics)
	if err != nil {
		return fmt.Errorf("encode checkpoint statistics: %w", err)
	}

	query := `
		INSERT INTO compliance_checkpoints (` + checkpointColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(c.ID),
		uuid.UUID(c.TenantID),
		c.Name,
		c.SubjectType,
		c.SubjectID,
		c.Requirement,
		string(c.Status),
		statistics,
		c.ExpiresAt,
		c.CreatedAt,
		c.VerifiedAt,
		verifiedBy(c),
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID id.TenantID, checkpointID id.CheckpointID) (*models.Checkpoint, error) {
	query := `
		SELECT ` + checkpointColumns + `
		FROM compliance_checkpoints
		WHERE tenant_id = $1 AND id = $2
	`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(checkpointID))
	checkpoint, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}
	return checkpoint, nil
}

func (s *PostgresStore) Update(ctx context.Context, c *models.Checkpoint) error {
	query := `
		UPDATE compliance_checkpoints
		SET status = $3, verified_at = $4, verified_by = $5
		WHERE tenant_id = $1 AND id = $2
	`
	result, err := s.db.ExecContext(ctx, query,
		uuid.UUID(c.TenantID),
		uuid.UUID(c.ID),
		string(c.Status),
		c.VerifiedAt,
		verifiedBy(c),
	)
	if err != nil {
		return fmt.Errorf("update checkpoint: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update checkpoint: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, tenantID id.TenantID) ([]*models.Checkpoint, error) {
	query := `
		SELECT ` + checkpointColumns + `
		FROM compliance_checkpoints
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*models.Checkpoint
	for rows.Next() {
		checkpoint, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, checkpoint)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return checkpoints, nil
}

func verifiedBy(c *models.Checkpoint) *uuid.UUID {
	if c.VerifiedBy.IsNil() {
		return nil
	}
	verifier := uuid.UUID(c.VerifiedBy)
	return &verifier
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*models.Checkpoint, error) {
	var (
		checkpoint   models.Checkpoint
		checkpointID uuid.UUID
		tenantID     uuid.UUID
		status       string
		statistics   []byte
		verifier     *uuid.UUID
	)
	err := row.Scan(
		&checkpointID,
		&tenantID,
		&checkpoint.Name,
		&checkpoint.SubjectType,
		&checkpoint.SubjectID,
		&checkpoint.Requirement,
		&status,
		&statistics,
		&checkpoint.ExpiresAt,
		&checkpoint.CreatedAt,
		&checkpoint.VerifiedAt,
		&verifier,
	)
	if err != nil {
		return nil, err
	}

	checkpoint.ID = id.CheckpointID(checkpointID)
	checkpoint.TenantID = id.TenantID(tenantID)
	checkpoint.Status = models.Status(status)
	if verifier != nil {
		checkpoint.VerifiedBy = id.ActorID(*verifier)
	}
	if err := json.Unmarshal(statistics, &checkpoint.Statistics); err != nil {
		return nil, fmt.Errorf("decode checkpoint statistics: %w", err)
	}
	return &checkpoint, nil
}
