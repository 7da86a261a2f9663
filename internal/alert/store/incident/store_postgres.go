package incident

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"veritrail/internal/alert/models"
	audit "veritrail/internal/audit/models"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

// PostgresStore persists incidents. A unique index on (rule_id, entry_id)
// enforces the exactly-once-per-match invariant at the storage layer.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const incidentColumns = `
	id, tenant_id, rule_id, severity, entry_id, action, subject_type,
	message, note, created_at, resolved_at, resolved_by
`

func (s *PostgresStore) Create(ctx context.Context, incident *models.Incident) error {
	query := `
		INSERT INTO incidents (` + incidentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(incident.ID),
		uuid.UUID(incident.TenantID),
		uuid.UUID(incident.RuleID),
		string(incident.Severity),
		uuid.UUID(incident.EntryID),
		string(incident.Action),
		incident.SubjectType,
		incident.Message,
		incident.Note,
		incident.CreatedAt,
		incident.ResolvedAt,
		resolvedBy(incident),
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID id.TenantID, incidentID id.IncidentID) (*models.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE tenant_id = $1 AND id = $2
	`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(incidentID))
	incident, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query incident: %w", err)
	}
	return incident, nil
}

func (s *PostgresStore) Update(ctx context.Context, incident *models.Incident) error {
	query := `
		UPDATE incidents
		SET note = $3, resolved_at = $4, resolved_by = $5
		WHERE tenant_id = $1 AND id = $2
	`
	result, err := s.db.ExecContext(ctx, query,
		uuid.UUID(incident.TenantID),
		uuid.UUID(incident.ID),
		incident.Note,
		incident.ResolvedAt,
		resolvedBy(incident),
	)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, tenantID id.TenantID, filter models.IncidentFilter) ([]*models.Incident, error) {
	conds := []string{"tenant_id = $1"}
	args := []any{uuid.UUID(tenantID)}

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !filter.RuleID.IsNil() {
		add("rule_id = $%d", uuid.UUID(filter.RuleID))
	}
	if filter.Severity != "" {
		add("severity = $%d", string(filter.Severity))
	}
	if filter.Resolved != nil {
		if *filter.Resolved {
			conds = append(conds, "resolved_at IS NOT NULL")
		} else {
			conds = append(conds, "resolved_at IS NULL")
		}
	}

	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY created_at DESC
	`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*models.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return incidents, nil
}

func resolvedBy(incident *models.Incident) *uuid.UUID {
	if incident.ResolvedBy.IsNil() {
		return nil
	}
	resolver := uuid.UUID(incident.ResolvedBy)
	return &resolver
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	var (
		incident   models.Incident
		incidentID uuid.UUID
		tenantID   uuid.UUID
		ruleID     uuid.UUID
		entryID    uuid.UUID
		severity   string
		action     string
		resolver   *uuid.UUID
	)
	err := row.Scan(
		&incidentID,
		&tenantID,
		&ruleID,
		&severity,
		&entryID,
		&action,
		&incident.SubjectType,
		&incident.Message,
		&incident.Note,
		&incident.CreatedAt,
		&incident.ResolvedAt,
		&resolver,
	)
	if err != nil {
		return nil, err
	}

	incident.ID = id.IncidentID(incidentID)
	incident.TenantID = id.TenantID(tenantID)
	incident.RuleID = id.RuleID(ruleID)
	incident.EntryID = id.EntryID(entryID)
	incident.Severity = audit.Severity(severity)
	incident.Action = audit.Action(action)
	if resolver != nil {
		incident.ResolvedBy = id.ActorID(*resolver)
	}
	return &incident, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
