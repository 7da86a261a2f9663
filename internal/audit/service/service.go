// Package service implements the audit log write path and chain verification.
//
// Appends are serialized per tenant: the chain-head read, digest stamp, and
// insert form one critical section, so two concurrent appends for the same
// tenant can never observe the same head and fork the chain. Writers for
// different tenants do not contend, and reads are never blocked.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"veritrail/internal/audit/hashchain"
	"veritrail/internal/audit/models"
	"veritrail/internal/audit/ports"
	"veritrail/internal/audit/redact"
	"veritrail/internal/notify"
	"veritrail/internal/platform/metrics"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/keymutex"
	"veritrail/pkg/platform/sentinel"
	"veritrail/pkg/requestcontext"
)

type Service struct {
	entries   ports.EntryStore
	redactor  *redact.Redactor
	publisher ports.Publisher
	evaluator ports.Evaluator
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer

	// tenantLocks serializes the append critical section per tenant.
	tenantLocks *keymutex.KeyMutex[id.TenantID]
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithPublisher(publisher ports.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithEvaluator(evaluator ports.Evaluator) Option {
	return func(s *Service) { s.evaluator = evaluator }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithRedactor(r *redact.Redactor) Option {
	return func(s *Service) { s.redactor = r }
}

func New(entries ports.EntryStore, opts ...Option) (*Service, error) {
	if entries == nil {
		return nil, fmt.Errorf("entry store is required")
	}

	svc := &Service{
		entries:     entries,
		redactor:    redact.New(),
		tracer:      otel.Tracer("veritrail/audit"),
		tenantLocks: keymutex.New[id.TenantID](),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Append records a new audit entry at the head of the tenant's chain.
//
// Metadata is redacted before the digest is computed, so sensitive values
// never feed chain integrity. Persistence failures propagate to the caller;
// notification and alert-evaluation failures never do.
func (s *Service) Append(ctx context.Context, req models.AppendRequest) (*models.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "audit.append")
	defer span.End()

	if req.TenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant id is required")
	}
	if !req.Action.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown action %q", req.Action)
	}
	if req.Category == "" {
		req.Category = models.CategorySystem
	} else if !req.Category.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown category %q", req.Category)
	}
	if req.Severity == "" {
		req.Severity = models.SeverityInfo
	} else if !req.Severity.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown severity %q", req.Severity)
	}

	ipAddress := req.IPAddress
	if ipAddress == "" {
		ipAddress = requestcontext.ClientIP(ctx)
	}
	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = requestcontext.UserAgent(ctx)
	}

	// Redaction happens before the critical section; it does not touch
	// shared state and must precede any digest computation.
	metadata := s.redactor.RedactMap(redact.StripIntegrityKeys(req.Metadata))

	entry := &models.Entry{
		ID:          id.NewEntryID(),
		TenantID:    req.TenantID,
		ActorID:     req.ActorID,
		Action:      req.Action,
		Category:    req.Category,
		Severity:    req.Severity,
		SubjectType: req.SubjectType,
		SubjectID:   req.SubjectID,
		Description: req.Description,
		Metadata:    metadata,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
	}

	start := time.Now()
	if err := s.appendLocked(ctx, entry); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.AppendDuration.Observe(time.Since(start).Seconds())
		s.metrics.EntriesAppended.Inc()
	}

	s.publish(ctx, notify.EntryLogged(entry.TenantID, entry.ID, string(entry.Action), entry.CreatedAt))

	// Exactly one submission per entry; the engine owns everything after.
	if s.evaluator != nil {
		s.evaluator.Submit(entry)
	}

	return entry, nil
}

// appendLocked runs the head-read, stamp, insert sequence under the tenant's
// append lock. The digest is computed before the durable write, so no reader
// ever observes an unstamped entry.
func (s *Service) appendLocked(ctx context.Context, entry *models.Entry) error {
	s.tenantLocks.Lock(entry.TenantID)
	defer s.tenantLocks.Unlock(entry.TenantID)

	prevDigest := ""
	// Postgres timestamptz keeps microseconds; stamping at a finer
	// precision would change the digest once the entry is reloaded.
	now := requestcontext.Now(ctx).Truncate(time.Microsecond)
	head, err := s.entries.Head(ctx, entry.TenantID)
	switch {
	case err == nil:
		prevDigest = head.Digest
		// Creation time is monotonically non-decreasing per tenant in
		// write order even if the wall clock steps backwards.
		if now.Before(head.CreatedAt) {
			now = head.CreatedAt
		}
	case errors.Is(err, sentinel.ErrNotFound):
		// First entry of the chain.
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read chain head")
	}
	entry.CreatedAt = now

	if err := hashchain.Stamp(entry, prevDigest); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to stamp entry digest")
	}

	if err := s.entries.Insert(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist audit entry")
	}
	return nil
}

// Get returns a single entry scoped to the tenant.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID, entryID id.EntryID) (*models.Entry, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant id is required")
	}
	entry, err := s.entries.Get(ctx, tenantID, entryID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "audit entry not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit entry")
	}
	return entry, nil
}

// List returns entries for the tenant, newest first.
func (s *Service) List(ctx context.Context, tenantID id.TenantID, filter models.EntryFilter) ([]*models.Entry, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant id is required")
	}
	entries, err := s.entries.List(ctx, tenantID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit entries")
	}
	return entries, nil
}

// publish emits an outward notification. Failures are logged and swallowed:
// notification consumers must never affect the write path.
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
