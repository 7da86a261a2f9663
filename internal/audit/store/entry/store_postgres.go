package entry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"veritrail/internal/audit/models"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

// PostgresStore persists audit entries. Insertion order per tenant is kept by
// the seq bigserial column; created_at alone cannot break ties under
// concurrent appends for different tenants.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const entryColumns = `
	id, tenant_id, actor_id, action, category, severity,
	subject_type, subject_id, description, metadata,
	ip_address, user_agent, created_at, digest, prev_digest
`

func (s *PostgresStore) Insert(ctx context.Context, entry *models.Entry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal entry metadata: %w", err)
	}

	var actorID *uuid.UUID
	if !entry.ActorID.IsNil() {
		aid := uuid.UUID(entry.ActorID)
		actorID = &aid
	}

	query := `
		INSERT INTO audit_entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.TenantID),
		actorID,
		string(entry.Action),
		string(entry.Category),
		string(entry.Severity),
		entry.SubjectType,
		entry.SubjectID,
		entry.Description,
		metadata,
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedAt,
		entry.Digest,
		entry.PrevDigest,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Head(ctx context.Context, tenantID id.TenantID) (*models.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM audit_entries
		WHERE tenant_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(tenantID))
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query chain head: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID id.TenantID, entryID id.EntryID) (*models.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM audit_entries
		WHERE tenant_id = $1 AND id = $2
	`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(entryID))
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query audit entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) List(ctx context.Context, tenantID id.TenantID, filter models.EntryFilter) ([]*models.Entry, error) {
	where, args := buildFilter(tenantID, filter)
	query := `
		SELECT ` + entryColumns + `
		FROM audit_entries
		WHERE ` + where + `
		ORDER BY seq DESC
	`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *PostgresStore) ListChain(ctx context.Context, tenantID id.TenantID) ([]*models.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM audit_entries
		WHERE tenant_id = $1
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("query chain: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *PostgresStore) Count(ctx context.Context, tenantID id.TenantID, filter models.EntryFilter) (int64, error) {
	where, args := buildFilter(tenantID, filter)
	query := `SELECT COUNT(*) FROM audit_entries WHERE ` + where

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// buildFilter renders the WHERE clause for a tenant-scoped filtered query.
func buildFilter(tenantID id.TenantID, filter models.EntryFilter) (string, []any) {
	conds := []string{"tenant_id = $1"}
	args := []any{uuid.UUID(tenantID)}

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if len(filter.Actions) > 0 {
		actions := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			actions[i] = string(a)
		}
		add("action = ANY($%d)", actions)
	}
	if filter.Category != "" {
		add("category = $%d", string(filter.Category))
	}
	if filter.Severity != "" {
		add("severity = $%d", string(filter.Severity))
	}
	if filter.SubjectType != "" {
		add("subject_type = $%d", filter.SubjectType)
	}
	if !filter.ActorID.IsNil() {
		add("actor_id = $%d", uuid.UUID(filter.ActorID))
	}
	if !filter.Since.IsZero() {
		add("created_at >= $%d", filter.Since)
	}
	if !filter.Until.IsZero() {
		add("created_at <= $%d", filter.Until)
	}

	return strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.Entry, error) {
	var (
		entry    models.Entry
		entryID  uuid.UUID
		tenantID uuid.UUID
		actorID  *uuid.UUID
		action   string
		category string
		severity string
		metadata []byte
	)

	err := row.Scan(
		&entryID,
		&tenantID,
		&actorID,
		&action,
		&category,
		&severity,
		&entry.SubjectType,
		&entry.SubjectID,
		&entry.Description,
		&metadata,
		&entry.IPAddress,
		&entry.UserAgent,
		&entry.CreatedAt,
		&entry.Digest,
		&entry.PrevDigest,
	)
	if err != nil {
		return nil, err
	}

	entry.ID = id.EntryID(entryID)
	entry.TenantID = id.TenantID(tenantID)
	if actorID != nil {
		entry.ActorID = id.ActorID(*actorID)
	}
	entry.Action = models.Action(action)
	entry.Category = models.Category(category)
	entry.Severity = models.Severity(severity)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal entry metadata: %w", err)
		}
	}
	return &entry, nil
}

func scanEntries(rows *sql.Rows) ([]*models.Entry, error) {
	var entries []*models.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
