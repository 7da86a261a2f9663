// Package engine evaluates appended audit entries against tenant alert rules
// and raises incidents for matches.
//
// Evaluation is decoupled from the append path: entries arrive through a
// bounded queue and are processed by a worker pool. When the queue is full
// the entry is dropped and counted rather than blocking a write.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"veritrail/internal/alert/models"
	"veritrail/internal/alert/ports"
	audit "veritrail/internal/audit/models"
	auditports "veritrail/internal/audit/ports"
	"veritrail/internal/notify"
	"veritrail/internal/platform/metrics"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

const (
	defaultQueueSize = 1024
	defaultWorkers   = 4
)

type Engine struct {
	rules     ports.ActiveRuleProvider
	incidents ports.IncidentStore
	publisher auditports.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	queue   chan *audit.Entry
	workers int
}

type Option func(*Engine)

func WithPublisher(publisher auditports.Publisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithQueueSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.queue = make(chan *audit.Entry, size)
		}
	}
}

func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func New(rules ports.ActiveRuleProvider, incidents ports.IncidentStore, opts ...Option) (*Engine, error) {
	if rules == nil {
		return nil, errors.New("engine: rule provider is required")
	}
	if incidents == nil {
		return nil, errors.New("engine: incident store is required")
	}

	e := &Engine{
		rules:     rules,
		incidents: incidents,
		logger:    slog.Default(),
		queue:     make(chan *audit.Entry, defaultQueueSize),
		workers:   defaultWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Submit hands an entry to the engine for evaluation. It never blocks: when
// the queue is full the entry is dropped and the drop counted. Entries
// without a tenant are ignored.
func (e *Engine) Submit(entry *audit.Entry) {
	if entry == nil || entry.TenantID.IsNil() {
		return
	}
	select {
	case e.queue <- entry:
	default:
		if e.metrics != nil {
			e.metrics.AlertQueueDrops.Inc()
		}
		e.logger.Warn("alert evaluation queue full, dropping entry",
			"tenant_id", entry.TenantID,
			"entry_id", entry.ID,
		)
	}
}

// Run drains the queue with a pool of workers until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for range e.workers {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case entry := <-e.queue:
					e.evaluate(ctx, entry)
				}
			}
		})
	}
	return g.Wait()
}

func (e *Engine) evaluate(ctx context.Context, entry *audit.Entry) {
	if e.metrics != nil {
		e.metrics.AlertsEvaluated.Inc()
	}

	rules, err := e.rules.ActiveRules(ctx, entry.TenantID)
	if err != nil {
		if e.metrics != nil {
			e.metrics.AlertEvaluationErrors.Inc()
		}
		e.logger.Error("active rule lookup failed",
			"tenant_id", entry.TenantID,
			"entry_id", entry.ID,
			"error", err,
		)
		return
	}

	for _, rule := range rules {
		if err := e.evaluateRule(ctx, rule, entry); err != nil {
			if e.metrics != nil {
				e.metrics.AlertEvaluationErrors.Inc()
			}
			e.logger.Error("rule evaluation failed",
				"tenant_id", entry.TenantID,
				"rule_id", rule.ID,
				"entry_id", entry.ID,
				"error", err,
			)
		}
	}
}

// evaluateRule matches one rule against one entry and raises an incident on
// match. A panic in a single rule is contained so the remaining rules still
// get evaluated.
func (e *Engine) evaluateRule(ctx context.Context, rule *models.AlertRule, entry *audit.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule evaluation panic: %v", r)
		}
	}()

	if !rule.Conditions.Matches(entry) {
		return nil
	}
	if e.metrics != nil {
		e.metrics.AlertMatches.Inc()
	}
	return e.raiseIncident(ctx, rule, entry)
}

func (e *Engine) raiseIncident(ctx context.Context, rule *models.AlertRule, entry *audit.Entry) error {
	severity := rule.Severity
	if severity == "" {
		severity = audit.SeverityMedium
	}

	incident := &models.Incident{
		ID:          id.NewIncidentID(),
		TenantID:    entry.TenantID,
		RuleID:      rule.ID,
		Severity:    severity,
		EntryID:     entry.ID,
		Action:      entry.Action,
		SubjectType: entry.SubjectType,
		Message:     fmt.Sprintf("rule %q matched %s on %s", rule.Name, entry.Action, entry.SubjectType),
		CreatedAt:   time.Now().UTC(),
	}

	err := e.incidents.Create(ctx, incident)
	if errors.Is(err, sentinel.ErrConflict) {
		// Already raised for this (rule, entry) pair, e.g. a redelivery.
		return nil
	}
	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}

	if e.metrics != nil {
		e.metrics.IncidentsRaised.Inc()
	}
	e.logger.Info("incident raised",
		"tenant_id", incident.TenantID,
		"incident_id", incident.ID,
		"rule_id", rule.ID,
		"entry_id", entry.ID,
		"severity", incident.Severity,
	)

	if e.publisher != nil {
		event := notify.IncidentRaised(incident.TenantID, incident.ID, rule.ID, incident.CreatedAt)
		if err := e.publisher.Publish(ctx, event); err != nil {
			e.logger.Error("incident notification failed",
				"tenant_id", incident.TenantID,
				"incident_id", incident.ID,
				"error", err,
			)
		}
	}
	return nil
}
