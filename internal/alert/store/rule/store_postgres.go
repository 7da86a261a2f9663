package rule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"veritrail/internal/alert/models"
	audit "veritrail/internal/audit/models"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

// PostgresStore persists alert rules. Conditions are stored as a JSONB
// document; a unique index on (tenant_id, lower(name)) backs the name
// conflict check.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// conditionsDoc is the JSONB shape of a rule's condition set.
type conditionsDoc struct {
	Actions      []string `json:"actions,omitempty"`
	SubjectTypes []string `json:"subjectTypes,omitempty"`
	ActorIDs     []string `json:"actorIds,omitempty"`
	IPAddresses  []string `json:"ipAddresses,omitempty"`
}

func encodeConditions(c models.TriggerConditions) ([]byte, error) {
	doc := conditionsDoc{
		SubjectTypes: c.SubjectTypes,
		IPAddresses:  c.IPAddresses,
	}
	for _, a := range c.Actions {
		doc.Actions = append(doc.Actions, string(a))
	}
	for _, actorID := range c.ActorIDs {
		doc.ActorIDs = append(doc.ActorIDs, actorID.String())
	}
	return json.Marshal(doc)
}

func decodeConditions(raw []byte) (models.TriggerConditions, error) {
	var doc conditionsDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.TriggerConditions{}, err
	}
	c := models.TriggerConditions{
		SubjectTypes: doc.SubjectTypes,
		IPAddresses:  doc.IPAddresses,
	}
	for _, a := range doc.Actions {
		c.Actions = append(c.Actions, audit.Action(a))
	}
	for _, raw := range doc.ActorIDs {
		actorID, err := uuid.Parse(raw)
		if err != nil {
			return models.TriggerConditions{}, fmt.Errorf("parse actor id: %w", err)
		}
		c.ActorIDs = append(c.ActorIDs, id.ActorID(actorID))
	}
	return c, nil
}

func (s *PostgresStore) Create(ctx context.Context, r *models.AlertRule) error {
	conditions, err := encodeConditions(r.Conditions)
	if err != nil {
		return fmt.Errorf("encode rule conditions: %w", err)
	}

	query := `
		INSERT INTO alert_rules (id, tenant_id, name, conditions, severity, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(r.ID),
		uuid.UUID(r.TenantID),
		r.Name,
		conditions,
		string(r.Severity),
		r.Active,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert alert rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, r *models.AlertRule) error {
	conditions, err := encodeConditions(r.Conditions)
	if err != nil {
		return fmt.Errorf("encode rule conditions: %w", err)
	}

	query := `
		UPDATE alert_rules
		SET name = $3, conditions = $4, severity = $5, active = $6, updated_at = $7
		WHERE tenant_id = $1 AND id = $2
	`
	result, err := s.db.ExecContext(ctx, query,
		uuid.UUID(r.TenantID),
		uuid.UUID(r.ID),
		r.Name,
		conditions,
		string(r.Severity),
		r.Active,
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update alert rule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update alert rule: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID id.TenantID, ruleID id.RuleID) (*models.AlertRule, error) {
	query := `
		SELECT id, tenant_id, name, conditions, severity, active, created_at, updated_at
		FROM alert_rules
		WHERE tenant_id = $1 AND id = $2
	`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(ruleID))
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query alert rule: %w", err)
	}
	return rule, nil
}

func (s *PostgresStore) List(ctx context.Context, tenantID id.TenantID, activeOnly bool) ([]*models.AlertRule, error) {
	query := `
		SELECT id, tenant_id, name, conditions, severity, active, created_at, updated_at
		FROM alert_rules
		WHERE tenant_id = $1
	`
	if activeOnly {
		query += " AND active"
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("query alert rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert rules: %w", err)
	}
	return rules, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.AlertRule, error) {
	var (
		rule       models.AlertRule
		ruleID     uuid.UUID
		tenantID   uuid.UUID
		conditions []byte
		severity   string
	)
	err := row.Scan(
		&ruleID,
		&tenantID,
		&rule.Name,
		&conditions,
		&severity,
		&rule.Active,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.ID = id.RuleID(ruleID)
	rule.TenantID = id.TenantID(tenantID)
	rule.Severity = audit.Severity(severity)
	rule.Conditions, err = decodeConditions(conditions)
	if err != nil {
		return nil, fmt.Errorf("decode rule conditions: %w", err)
	}
	return &rule, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
