// Package service implements the administrative surface of the alert module:
// rule lifecycle and incident review. Matching itself lives in the engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"veritrail/internal/alert/models"
	"veritrail/internal/alert/ports"
	"veritrail/internal/alert/rulecache"
	audit "veritrail/internal/audit/models"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/sentinel"
	pstrings "veritrail/pkg/platform/strings"
	"veritrail/pkg/requestcontext"
)

type Service struct {
	rules     ports.RuleStore
	incidents ports.IncidentStore
	cache     *rulecache.Cache
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithRuleCache lets the service invalidate the engine's cached rule sets on
// every rule write instead of waiting out the TTL.
func WithRuleCache(cache *rulecache.Cache) Option {
	return func(s *Service) { s.cache = cache }
}

func New(rules ports.RuleStore, incidents ports.IncidentStore, opts ...Option) (*Service, error) {
	if rules == nil {
		return nil, fmt.Errorf("rule store is required")
	}
	if incidents == nil {
		return nil, fmt.Errorf("incident store is required")
	}

	svc := &Service{rules: rules, incidents: incidents}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateRuleRequest carries the fields of a new alert rule.
type CreateRuleRequest struct {
	TenantID   id.TenantID
	Name       string
	Conditions models.TriggerConditions
	Severity   audit.Severity
	Active     *bool
}

// CreateRule registers a new rule for the tenant. Rule names are unique per
// tenant, case-insensitively.
func (s *Service) CreateRule(ctx context.Context, req CreateRuleRequest) (*models.AlertRule, error) {
	if req.TenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant id is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "rule name is required")
	}
	conditions := normalizeConditions(req.Conditions)
	if err := validateConditions(conditions); err != nil {
		return nil, err
	}
	if req.Severity != "" && !req.Severity.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown severity %q", req.Severity)
	}

	now := requestcontext.Now(ctx)
	rule := &models.AlertRule{
		ID:         id.NewRuleID(),
		TenantID:   req.TenantID,
		Name:       name,
		Conditions: conditions,
		Severity:   req.Severity,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}

	if err := s.rules.Create(ctx, rule); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "rule named %q already exists", name)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist alert rule")
	}

	s.invalidate(ctx, rule.TenantID)
	if s.logger != nil {
		s.logger.Info("alert rule created",
			"tenant_id", rule.TenantID,
			"rule_id", rule.ID,
			"name", rule.Name,
		)
	}
	return rule, nil
}

// UpdateRule applies the set fields of update to an existing rule.
func (s *Service) UpdateRule(ctx context.Context, tenantID id.TenantID, ruleID id.RuleID, update models.RuleUpdate) (*models.AlertRule, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant id is required")
	}

	rule, err := s.rules.Get(ctx, tenantID, ruleID)
	if err != nil {
		return nil, s.translateRuleErr(err)
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "rule name cannot be empty")
		}
		rule.Name = name
	}
	if update.Conditions != nil {
		conditions := normalizeConditions(*update.Conditions)
		if err := validateConditions(conditions); err != nil {
			return nil, err
		}
		rule.Conditions = conditions
	}
	if update.Severity != nil {
		if *update.Severity != "" && !update.Severity.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown severity %q", *update.Severity)
		}
		rule.Severity = *update.Severity
	}
	if update.Active != nil {
		rule.Active = *update.Active
	}
	rule.UpdatedAt = requestcontext.Now(ctx)

	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, s.translateRuleErr(err)
	}

	s.invalidate(ctx, tenantID)
	return rule, nil
}

// DeactivateRule stops a rule from firing without deleting it, so existing
// incidents keep a resolvable rule reference.
func (s *Service) DeactivateRule(ctx context.Context, tenantID id.TenantID, ruleID id.RuleID) (*models.AlertRule, error) {
	active := false
	return s.UpdateRule(ctx, tenantID, ruleID, models.RuleUpdate{Active: &active})
}

// GetRule returns one rule scoped to the tenant.
func (s *Service) GetRule(ctx context.Context, tenantID id.TenantID, ruleID id.RuleID) (*models.AlertRule, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant id is required")
	}
	rule, err := s.rules.Get(ctx, tenantID, ruleID)
	if err != nil {
		return nil, s.translateRuleErr(err)
	}
	return rule, nil
}

// ListRules returns the tenant's rules in creation order.
func (s *Service) ListRules(ctx context.Context, tenantID id.TenantID, activeOnly bool) ([]*models.AlertRule, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant id is required")
	}
	rules, err := s.rules.List(ctx, tenantID, activeOnly)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list alert rules")
	}
	return rules, nil
}

// GetIncident returns one incident scoped to the tenant.
func (s *Service) GetIncident(ctx context.Context, tenantID id.TenantID, incidentID id.IncidentID) (*models.Incident, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant id is required")
	}
	incident, err := s.incidents.Get(ctx, tenantID, incidentID)
	if err != nil {
		return nil, s.translateIncidentErr(err)
	}
	return incident, nil
}

// ListIncidents returns the tenant's incidents, newest first.
func (s *Service) ListIncidents(ctx context.Context, tenantID id.TenantID, filter models.IncidentFilter) ([]*models.Incident, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant id is required")
	}
	if filter.Severity != "" && !filter.Severity.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown severity %q", filter.Severity)
	}
	incidents, err := s.incidents.List(ctx, tenantID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list incidents")
	}
	return incidents, nil
}

// ResolveIncident closes an incident, recording who resolved it and an
// optional note. Resolving an already-resolved incident is a no-op that
// returns the incident unchanged.
func (s *Service) ResolveIncident(ctx context.Context, tenantID id.TenantID, incidentID id.IncidentID, note string) (*models.Incident, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant id is required")
	}

	incident, err := s.incidents.Get(ctx, tenantID, incidentID)
	if err != nil {
		return nil, s.translateIncidentErr(err)
	}
	if incident.Resolved() {
		return incident, nil
	}

	now := requestcontext.Now(ctx)
	incident.ResolvedAt = &now
	incident.ResolvedBy = requestcontext.ActorID(ctx)
	if note != "" {
		incident.Note = note
	}

	if err := s.incidents.Update(ctx, incident); err != nil {
		return nil, s.translateIncidentErr(err)
	}

	if s.logger != nil {
		s.logger.Info("incident resolved",
			"tenant_id", tenantID,
			"incident_id", incidentID,
			"resolved_by", incident.ResolvedBy,
		)
	}
	return incident, nil
}

// normalizeConditions trims and dedupes the free-form string lists so a rule
// like {subjectTypes: ["user", " user "]} does not store duplicates.
func normalizeConditions(c models.TriggerConditions) models.TriggerConditions {
	c.SubjectTypes = pstrings.DedupeAndTrim(c.SubjectTypes)
	c.IPAddresses = pstrings.DedupeAndTrim(c.IPAddresses)
	return c
}

func validateConditions(c models.TriggerConditions) error {
	for _, a := range c.Actions {
		if !a.IsValid() {
			return dErrors.Newf(dErrors.CodeBadRequest, "unknown action %q in conditions", a)
		}
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, tenantID id.TenantID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, tenantID)
	}
}

func (s *Service) translateRuleErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "alert rule not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "rule name already in use")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "alert rule operation failed")
	}
}

func (s *Service) translateIncidentErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "incident not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "incident operation failed")
}
