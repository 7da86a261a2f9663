// Package handler wires alert rule and incident endpoints to the alert
// service.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"veritrail/internal/alert/models"
	"veritrail/internal/alert/service"
	audit "veritrail/internal/audit/models"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/httputil"
	"veritrail/pkg/requestcontext"
)

// Service defines the alert operations the handler depends on.
type Service interface {
	CreateRule(ctx context.Context, req service.CreateRuleRequest) (*models.AlertRule, error)
	UpdateRule(ctx context.Context, tenantID id.TenantID, ruleID id.RuleID, update models.RuleUpdate) (*models.AlertRule, error)
	GetRule(ctx context.Context, tenantID id.TenantID, ruleID id.RuleID) (*models.AlertRule, error)
	ListRules(ctx context.Context, tenantID id.TenantID, activeOnly bool) ([]*models.AlertRule, error)
	GetIncident(ctx context.Context, tenantID id.TenantID, incidentID id.IncidentID) (*models.Incident, error)
	ListIncidents(ctx context.Context, tenantID id.TenantID, filter models.IncidentFilter) ([]*models.Incident, error)
	ResolveIncident(ctx context.Context, tenantID id.TenantID, incidentID id.IncidentID, note string) (*models.Incident, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAdmin mounts rule management routes; the caller wraps them with the
// admin token middleware in addition to actor auth.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/alert/rules", h.handleCreateRule)
	r.Patch("/alert/rules/{ruleID}", h.handleUpdateRule)
}

// Register mounts read and resolution routes behind actor auth only.
func (h *Handler) Register(r chi.Router) {
	r.Get("/alert/rules", h.handleListRules)
	r.Get("/alert/rules/{ruleID}", h.handleGetRule)
	r.Get("/alert/incidents", h.handleListIncidents)
	r.Get("/alert/incidents/{incidentID}", h.handleGetIncident)
	r.Post("/alert/incidents/{incidentID}/resolve", h.handleResolveIncident)
}

type conditionsBody struct {
	Actions      []string `json:"actions,omitempty"`
	SubjectTypes []string `json:"subjectTypes,omitempty"`
	ActorIDs     []string `json:"actorIds,omitempty"`
	IPAddresses  []string `json:"ipAddresses,omitempty"`
}

func (b conditionsBody) toConditions() (models.TriggerConditions, error) {
	c := models.TriggerConditions{
		SubjectTypes: b.SubjectTypes,
		IPAddresses:  b.IPAddresses,
	}
	for _, a := range b.Actions {
		c.Actions = append(c.Actions, audit.Action(a))
	}
	for _, raw := range b.ActorIDs {
		actorID, err := id.ParseActorID(raw)
		if err != nil {
			return models.TriggerConditions{}, dErrors.Newf(dErrors.CodeBadRequest, "invalid actor id %q in conditions", raw)
		}
		c.ActorIDs = append(c.ActorIDs, actorID)
	}
	return c, nil
}

func fromConditions(c models.TriggerConditions) conditionsBody {
	b := conditionsBody{
		SubjectTypes: c.SubjectTypes,
		IPAddresses:  c.IPAddresses,
	}
	for _, a := range c.Actions {
		b.Actions = append(b.Actions, string(a))
	}
	for _, actorID := range c.ActorIDs {
		b.ActorIDs = append(b.ActorIDs, actorID.String())
	}
	return b
}

type ruleResponse struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenantId"`
	Name       string         `json:"name"`
	Conditions conditionsBody `json:"conditions"`
	Severity   string         `json:"severity,omitempty"`
	Active     bool           `json:"active"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

func fromRule(r *models.AlertRule) ruleResponse {
	return ruleResponse{
		ID:         r.ID.String(),
		TenantID:   r.TenantID.String(),
		Name:       r.Name,
		Conditions: fromConditions(r.Conditions),
		Severity:   string(r.Severity),
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type incidentResponse struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	RuleID      string     `json:"ruleId"`
	Severity    string     `json:"severity"`
	EntryID     string     `json:"entryId"`
	Action      string     `json:"action"`
	SubjectType string     `json:"subjectType,omitempty"`
	Message     string     `json:"message"`
	Note        string     `json:"note,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy  string     `json:"resolvedBy,omitempty"`
}

func fromIncident(i *models.Incident) incidentResponse {
	resp := incidentResponse{
		ID:          i.ID.String(),
		TenantID:    i.TenantID.String(),
		RuleID:      i.RuleID.String(),
		Severity:    string(i.Severity),
		EntryID:     i.EntryID.String(),
		Action:      string(i.Action),
		SubjectType: i.SubjectType,
		Message:     i.Message,
		Note:        i.Note,
		CreatedAt:   i.CreatedAt,
		ResolvedAt:  i.ResolvedAt,
	}
	if !i.ResolvedBy.IsNil() {
		resp.ResolvedBy = i.ResolvedBy.String()
	}
	return resp
}

type createRuleRequest struct {
	Name       string         `json:"name"`
	Conditions conditionsBody `json:"conditions"`
	Severity   string         `json:"severity,omitempty"`
	Active     *bool          `json:"active,omitempty"`
}

func (h *Handler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.requireTenant(w, ctx)
	if !ok {
		return
	}

	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	conditions, err := req.Conditions.toConditions()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rule, err := h.service.CreateRule(ctx, service.CreateRuleRequest{
		TenantID:   tenantID,
		Name:       req.Name,
		Conditions: conditions,
		Severity:   audit.Severity(req.Severity),
		Active:     req.Active,
	})
	if err != nil {
		h.logWriteFailure(ctx, "rule creation failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromRule(rule))
}

type updateRuleRequest struct {
	Name       *string         `json:"name,omitempty"`
	Conditions *conditionsBody `json:"conditions,omitempty"`
	Severity   *string         `json:"severity,omitempty"`
	Active     *bool           `json:"active,omitempty"`
}

func (h *Handler) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.requireTenant(w, ctx)
	if !ok {
		return
	}

	ruleID, err := id.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid rule id"))
		return
	}

	var req updateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	update := models.RuleUpdate{Name: req.Name, Active: req.Active}
	if req.Conditions != nil {
		conditions, err := req.Conditions.toConditions()
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		update.Conditions = &conditions
	}
	if req.Severity != nil {
		severity := audit.Severity(*req.Severity)
		update.Severity = &severity
	}

	rule, err := h.service.UpdateRule(ctx, tenantID, ruleID, update)
	if err != nil {
		h.logWriteFailure(ctx, "rule update failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromRule(rule))
}

func (h *Handler) handleGetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.requireTenant(w, ctx)
	if !ok {
		return
	}

	ruleID, err := id.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid rule id"))
		return
	}

	rule, err := h.service.GetRule(ctx, tenantID, ruleID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromRule(rule))
}

func (h *Handler) handleListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.requireTenant(w, ctx)
	if !ok {
		return
	}

	activeOnly := r.URL.Query().Get("active") == "true"
	rules, err := h.service.ListRules(ctx, tenantID, activeOnly)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, fromRule(rule))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"rules": out})
}

func (h *Handler) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.requireTenant(w, ctx)
	if !ok {
		return
	}

	incidentID, err := id.ParseIncidentID(chi.URLParam(r, "incidentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid incident id"))
		return
	}

	incident, err := h.service.GetIncident(ctx, tenantID, incidentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromIncident(incident))
}

func (h *Handler) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.requireTenant(w, ctx)
	if !ok {
		return
	}

	filter, err := incidentFilterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	incidents, err := h.service.ListIncidents(ctx, tenantID, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]incidentResponse, 0, len(incidents))
	for _, incident := range incidents {
		out = append(out, fromIncident(incident))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"incidents": out})
}

func incidentFilterFromQuery(r *http.Request) (models.IncidentFilter, error) {
	q := r.URL.Query()
	filter := models.IncidentFilter{
		Severity: audit.Severity(q.Get("severity")),
	}
	if raw := q.Get("ruleId"); raw != "" {
		ruleID, err := id.ParseRuleID(raw)
		if err != nil {
			return models.IncidentFilter{}, dErrors.New(dErrors.CodeBadRequest, "invalid rule id")
		}
		filter.RuleID = ruleID
	}
	if raw := q.Get("resolved"); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			return models.IncidentFilter{}, dErrors.New(dErrors.CodeBadRequest, "invalid resolved flag")
		}
		filter.Resolved = &resolved
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return models.IncidentFilter{}, dErrors.New(dErrors.CodeBadRequest, "invalid limit")
		}
		filter.Limit = limit
	}
	return filter, nil
}

type resolveRequest struct {
	Note string `json:"note,omitempty"`
}

func (h *Handler) handleResolveIncident(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.requireTenant(w, ctx)
	if !ok {
		return
	}

	incidentID, err := id.ParseIncidentID(chi.URLParam(r, "incidentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid incident id"))
		return
	}

	var req resolveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}

	incident, err := h.service.ResolveIncident(ctx, tenantID, incidentID, req.Note)
	if err != nil {
		h.logWriteFailure(ctx, "incident resolution failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromIncident(incident))
}

func (h *Handler) requireTenant(w http.ResponseWriter, ctx context.Context) (id.TenantID, bool) {
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.TenantID{}, false
	}
	return tenantID, true
}

func (h *Handler) logWriteFailure(ctx context.Context, msg string, err error) {
	if dErrors.HasCode(err, dErrors.CodeBadRequest) ||
		dErrors.HasCode(err, dErrors.CodeNotFound) ||
		dErrors.HasCode(err, dErrors.CodeConflict) {
		return
	}
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}
