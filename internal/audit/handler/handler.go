// Package handler wires audit log endpoints to the audit service.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"veritrail/internal/audit/models"
	"veritrail/internal/audit/service"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/httputil"
	"veritrail/pkg/requestcontext"
)

// Service defines the audit operations the handler depends on.
type Service interface {
	Append(ctx context.Context, req models.AppendRequest) (*models.Entry, error)
	Get(ctx context.Context, tenantID id.TenantID, entryID id.EntryID) (*models.Entry, error)
	List(ctx context.Context, tenantID id.TenantID, filter models.EntryFilter) ([]*models.Entry, error)
	VerifyChain(ctx context.Context, tenantID id.TenantID, opts service.VerifyOptions) (service.VerifyResult, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts audit endpoints on the router. The caller applies auth
// middleware; every route here assumes an authenticated tenant in context.
func (h *Handler) Register(r chi.Router) {
	r.Post("/audit/entries", h.handleAppend)
	r.Get("/audit/entries", h.handleList)
	r.Get("/audit/entries/{entryID}", h.handleGet)
	r.Post("/audit/verify", h.handleVerify)
}

type appendRequest struct {
	Action      string         `json:"action"`
	Category    string         `json:"category,omitempty"`
	Severity    string         `json:"severity,omitempty"`
	SubjectType string         `json:"subjectType,omitempty"`
	SubjectID   string         `json:"subjectId,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	IPAddress   string         `json:"ipAddress,omitempty"`
	UserAgent   string         `json:"userAgent,omitempty"`
}

type entryResponse struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenantId"`
	ActorID      string         `json:"actorId,omitempty"`
	Action       string         `json:"action"`
	Category     string         `json:"category"`
	Severity     string         `json:"severity"`
	SubjectType  string         `json:"subjectType,omitempty"`
	SubjectID    string         `json:"subjectId,omitempty"`
	Description  string         `json:"description,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	Hash         string         `json:"hash"`
	PreviousHash string         `json:"previousHash,omitempty"`
}

func fromEntry(e *models.Entry) entryResponse {
	resp := entryResponse{
		ID:           e.ID.String(),
		TenantID:     e.TenantID.String(),
		Action:       string(e.Action),
		Category:     string(e.Category),
		Severity:     string(e.Severity),
		SubjectType:  e.SubjectType,
		SubjectID:    e.SubjectID,
		Description:  e.Description,
		Metadata:     e.Metadata,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		CreatedAt:    e.CreatedAt,
		Hash:         e.Digest,
		PreviousHash: e.PrevDigest,
	}
	if !e.ActorID.IsNil() {
		resp.ActorID = e.ActorID.String()
	}
	return resp
}

func fromEntries(entries []*models.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, fromEntry(e))
	}
	return out
}

func (h *Handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	var req appendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid append request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	entry, err := h.service.Append(ctx, models.AppendRequest{
		TenantID:    tenantID,
		ActorID:     requestcontext.ActorID(ctx),
		Action:      models.Action(req.Action),
		Category:    models.Category(req.Category),
		Severity:    models.Severity(req.Severity),
		SubjectType: req.SubjectType,
		SubjectID:   req.SubjectID,
		Description: req.Description,
		Metadata:    req.Metadata,
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
	})
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeBadRequest) {
			h.logger.ErrorContext(ctx, "append failed",
				"request_id", requestID,
				"tenant_id", tenantID,
				"error", err.Error(),
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, fromEntry(entry))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	entryID, err := id.ParseEntryID(chi.URLParam(r, "entryID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid entry id"))
		return
	}

	entry, err := h.service.Get(ctx, tenantID, entryID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromEntry(entry))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.service.List(ctx, tenantID, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": fromEntries(entries)})
}

func filterFromQuery(r *http.Request) (models.EntryFilter, error) {
	q := r.URL.Query()
	filter := models.EntryFilter{
		Category:    models.Category(q.Get("category")),
		Severity:    models.Severity(q.Get("severity")),
		SubjectType: q.Get("subjectType"),
	}
	for _, raw := range q["action"] {
		filter.Actions = append(filter.Actions, models.Action(raw))
	}
	if raw := q.Get("actorId"); raw != "" {
		actorID, err := id.ParseActorID(raw)
		if err != nil {
			return models.EntryFilter{}, dErrors.New(dErrors.CodeBadRequest, "invalid actor id")
		}
		filter.ActorID = actorID
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return models.EntryFilter{}, dErrors.New(dErrors.CodeBadRequest, "invalid since timestamp")
		}
		filter.Since = since
	}
	if raw := q.Get("until"); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return models.EntryFilter{}, dErrors.New(dErrors.CodeBadRequest, "invalid until timestamp")
		}
		filter.Until = until
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return models.EntryFilter{}, dErrors.New(dErrors.CodeBadRequest, "invalid limit")
		}
		filter.Limit = limit
	}
	return filter, nil
}

type verifyRequest struct {
	StartEntryID string `json:"startEntryId,omitempty"`
	EndEntryID   string `json:"endEntryId,omitempty"`
}

type verifyResponse struct {
	Valid    bool    `json:"valid"`
	BrokenAt *string `json:"brokenAt,omitempty"`
	Checked  int     `json:"checked"`
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	var req verifyRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}

	var opts service.VerifyOptions
	if req.StartEntryID != "" {
		startID, err := id.ParseEntryID(req.StartEntryID)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid start entry id"))
			return
		}
		opts.StartEntryID = startID
	}
	if req.EndEntryID != "" {
		endID, err := id.ParseEntryID(req.EndEntryID)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid end entry id"))
			return
		}
		opts.EndEntryID = endID
	}

	result, err := h.service.VerifyChain(ctx, tenantID, opts)
	if err != nil {
		h.logger.ErrorContext(ctx, "chain verification failed",
			"request_id", requestID,
			"tenant_id", tenantID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	resp := verifyResponse{Valid: result.Valid, Checked: result.Checked}
	if result.BrokenAt != nil {
		broken := result.BrokenAt.String()
		resp.BrokenAt = &broken
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
