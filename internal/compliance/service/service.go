// Package service implements the compliance checkpoint lifecycle: creation
// with a frozen statistics snapshot, and the one-way verification transition.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	audit "veritrail/internal/audit/models"
	auditports "veritrail/internal/audit/ports"
	"veritrail/internal/compliance/models"
	"veritrail/internal/compliance/ports"
	"veritrail/internal/notify"
	"veritrail/internal/platform/metrics"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/sentinel"
	"veritrail/pkg/requestcontext"
)

type Service struct {
	checkpoints ports.CheckpointStore
	entries     auditports.EntryStore
	publisher   auditports.Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithPublisher(publisher auditports.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(checkpoints ports.CheckpointStore, entries auditports.EntryStore, opts ...Option) (*Service, error) {
	if checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if entries == nil {
		return nil, fmt.Errorf("entry store is required")
	}

	svc := &Service{checkpoints: checkpoints, entries: entries}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateRequest carries the fields of a new checkpoint.
type CreateRequest struct {
	TenantID    id.TenantID
	Name        string
	SubjectType string
	SubjectID   string
	Requirement string
	ExpiresAt   *time.Time
}

// Create snapshots the tenant's current log counts and persists a checkpoint
// in PENDING_VERIFICATION with those counts frozen. Counts are read without
// holding the append lock; a checkpoint is an advisory snapshot, not a
// consistency boundary.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Checkpoint, error) {
	if req.TenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant id is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "checkpoint name is required")
	}

	statistics, err := s.gatherStatistics(ctx, req.TenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot log statistics")
	}

	checkpoint := &models.Checkpoint{
		ID:          id.NewCheckpointID(),
		TenantID:    req.TenantID,
		Name:        name,
		SubjectType: req.SubjectType,
		SubjectID:   req.SubjectID,
		Requirement: req.Requirement,
		Status:      models.StatusPendingVerification,
		Statistics:  statistics,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   requestcontext.Now(ctx),
	}

	if err := s.checkpoints.Create(ctx, checkpoint); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist checkpoint")
	}

	if s.metrics != nil {
		s.metrics.CheckpointsCreated.Inc()
	}
	if s.logger != nil {
		s.logger.Info("compliance checkpoint created",
			"tenant_id", checkpoint.TenantID,
			"checkpoint_id", checkpoint.ID,
			"name", checkpoint.Name,
			"total_entries", statistics.TotalEntries,
		)
	}
	s.publish(ctx, notify.CheckpointCreated(checkpoint.TenantID, checkpoint.ID, checkpoint.CreatedAt))

	return checkpoint, nil
}

// Verify transitions a checkpoint to COMPLIANT and stamps the verifier and
// time. Verifying an already-compliant checkpoint returns it unchanged; the
// transition is one-way and the original verifier stands.
func (s *Service) Verify(ctx context.Context, tenantID id.TenantID, checkpointID id.CheckpointID, verifierID id.ActorID) (*models.Checkpoint, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant id is required")
	}
	if verifierID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "verifier id is required")
	}

	checkpoint, err := s.checkpoints.Get(ctx, tenantID, checkpointID)
	if err != nil {
		return nil, s.translateErr(err)
	}
	if checkpoint.Verified() {
		return checkpoint, nil
	}

	now := requestcontext.Now(ctx)
	checkpoint.Status = models.StatusCompliant
	checkpoint.VerifiedAt = &now
	checkpoint.VerifiedBy = verifierID

	if err := s.checkpoints.Update(ctx, checkpoint); err != nil {
		return nil, s.translateErr(err)
	}

	if s.metrics != nil {
		s.metrics.CheckpointsVerified.Inc()
	}
	if s.logger != nil {
		s.logger.Info("compliance checkpoint verified",
			"tenant_id", tenantID,
			"checkpoint_id", checkpointID,
			"verified_by", verifierID,
		)
	}
	return checkpoint, nil
}

// Get returns one checkpoint scoped to the tenant.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID, checkpointID id.CheckpointID) (*models.Checkpoint, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant id is required")
	}
	checkpoint, err := s.checkpoints.Get(ctx, tenantID, checkpointID)
	if err != nil {
		return nil, s.translateErr(err)
	}
	return checkpoint, nil
}

// List returns the tenant's checkpoints, newest first.
func (s *Service) List(ctx context.Context, tenantID id.TenantID) ([]*models.Checkpoint, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant id is required")
	}
	checkpoints, err := s.checkpoints.List(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list checkpoints")
	}
	return checkpoints, nil
}

// gatherStatistics reads the five count groups concurrently. Any single
// failed count fails the snapshot; a checkpoint with partial statistics
// would be worse than no checkpoint.
func (s *Service) gatherStatistics(ctx context.Context, tenantID id.TenantID) (models.Statistics, error) {
	var stats models.Statistics

	count := func(dst *int64, actions ...audit.Action) func() error {
		return func() error {
			n, err := s.entries.Count(ctx, tenantID, audit.EntryFilter{Actions: actions})
			if err != nil {
				return err
			}
			*dst = n
			return nil
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(count(&stats.TotalEntries))
	g.Go(count(&stats.ChangeRecords, audit.ActionCreate, audit.ActionUpdate, audit.ActionDelete))
	g.Go(count(&stats.AccessRecords, audit.ActionRead))
	g.Go(count(&stats.LoginRecords, audit.ActionLogin, audit.ActionLogout))
	g.Go(count(&stats.APICallRecords, audit.ActionAPICall))
	if err := g.Wait(); err != nil {
		return models.Statistics{}, err
	}
	return stats, nil
}

func (s *Service) publish(ctx context.Context, event notify.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil && s.logger != nil {
		s.logger.Error("notification publish failed",
			"kind", string(event.Kind),
			"tenant_id", event.TenantID,
			"error", err,
		)
	}
}

func (s *Service) translateErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "checkpoint not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "checkpoint operation failed")
}
