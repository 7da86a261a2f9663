// Package handler wires compliance checkpoint endpoints to the compliance
// service.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"veritrail/internal/compliance/models"
	"veritrail/internal/compliance/service"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/httputil"
	"veritrail/pkg/requestcontext"
)

// Service defines the compliance operations the handler depends on.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Checkpoint, error)
	Verify(ctx context.Context, tenantID id.TenantID, checkpointID id.CheckpointID, verifierID id.ActorID) (*models.Checkpoint, error)
	Get(ctx context.Context, tenantID id.TenantID, checkpointID id.CheckpointID) (*models.Checkpoint, error)
	List(ctx context.Context, tenantID id.TenantID) ([]*models.Checkpoint, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAdmin mounts checkpoint write routes; the caller wraps them with
// the admin token middleware in addition to actor auth.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/compliance/checkpoints", h.handleCreate)
	r.Post("/compliance/checkpoints/{checkpointID}/verify", h.handleVerify)
}

// Register mounts checkpoint read routes behind actor auth only.
func (h *Handler) Register(r chi.Router) {
	r.Get("/compliance/checkpoints", h.handleList)
	r.Get("/compliance/checkpoints/{checkpointID}", h.handleGet)
}

type statisticsBody struct {
	TotalEntries   int64 `json:"totalEntries"`
	ChangeRecords  int64 `json:"changeRecords"`
	AccessRecords  int64 `json:"accessRecords"`
	LoginRecords   int64 `json:"loginRecords"`
	APICallRecords int64 `json:"apiCallRecords"`
}

type checkpointResponse struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenantId"`
	Name        string         `json:"name"`
	SubjectType string         `json:"subjectType,omitempty"`
	SubjectID   string         `json:"subjectId,omitempty"`
	Requirement string         `json:"requirement,omitempty"`
	Status      string         `json:"status"`
	Statistics  statisticsBody `json:"statistics"`
	ExpiresAt   *time.Time     `json:"expiresAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	VerifiedAt  *time.Time     `json:"verifiedAt,omitempty"`
	VerifiedBy  string         `json:"verifiedBy,omitempty"`
}

func fromCheckpoint(c *models.Checkpoint) checkpointResponse {
	resp := checkpointResponse{
		ID:          c.ID.String(),
		TenantID:    c.TenantID.String(),
		Name:        c.Name,
		SubjectType: c.SubjectType,
		SubjectID:   c.SubjectID,
		Requirement: c.Requirement,
		Status:      string(c.Status),
		Statistics: statisticsBody{
			TotalEntries:   c.Statistics.TotalEntries,
			ChangeRecords:  c.Statistics.ChangeRecords,
			AccessRecords:  c.Statistics.AccessRecords,
			LoginRecords:   c.Statistics.LoginRecords,
			APICallRecords: c.Statistics.APICallRecords,
		},
		ExpiresAt:  c.ExpiresAt,
		CreatedAt:  c.CreatedAt,
		VerifiedAt: c.VerifiedAt,
	}
	if !c.VerifiedBy.IsNil() {
		resp.VerifiedBy = c.VerifiedBy.String()
	}
	return resp
}

type createRequest struct {
	Name        string     `json:"name"`
	SubjectType string     `json:"subjectType,omitempty"`
	SubjectID   string     `json:"subjectId,omitempty"`
	Requirement string     `json:"requirement,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	checkpoint, err := h.service.Create(ctx, service.CreateRequest{
		TenantID:    tenantID,
		Name:        req.Name,
		SubjectType: req.SubjectType,
		SubjectID:   req.SubjectID,
		Requirement: req.Requirement,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeBadRequest) {
			h.logger.ErrorContext(ctx, "checkpoint creation failed",
				"request_id", requestcontext.RequestID(ctx),
				"tenant_id", tenantID,
				"error", err.Error(),
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromCheckpoint(checkpoint))
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	checkpointID, err := id.ParseCheckpointID(chi.URLParam(r, "checkpointID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid checkpoint id"))
		return
	}

	checkpoint, err := h.service.Verify(ctx, tenantID, checkpointID, requestcontext.ActorID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromCheckpoint(checkpoint))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	checkpointID, err := id.ParseCheckpointID(chi.URLParam(r, "checkpointID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid checkpoint id"))
		return
	}

	checkpoint, err := h.service.Get(ctx, tenantID, checkpointID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromCheckpoint(checkpoint))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	checkpoints, err := h.service.List(ctx, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]checkpointResponse, 0, len(checkpoints))
	for _, checkpoint := range checkpoints {
		out = append(out, fromCheckpoint(checkpoint))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"checkpoints": out})
}
