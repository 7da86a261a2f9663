// Package rulecache fronts the rule store with a Redis cache for the hot
// path: the engine reads a tenant's active rules on every appended entry,
// while rule writes are rare admin operations.
//
// The cache is strictly an optimization. Redis being down or absent degrades
// to direct store reads; a cache failure never fails an evaluation.
package rulecache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"veritrail/internal/alert/models"
	"veritrail/internal/alert/ports"
	audit "veritrail/internal/audit/models"
	id "veritrail/pkg/domain"
)

const defaultTTL = 30 * time.Second

type Cache struct {
	store  ports.RuleStore
	client *redis.Client // nil disables caching
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*Cache)

func WithRedis(client *redis.Client) Option {
	return func(c *Cache) { c.client = client }
}

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

func New(store ports.RuleStore, opts ...Option) *Cache {
	c := &Cache{store: store, ttl: defaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(tenantID id.TenantID) string {
	return "alert:rules:active:" + tenantID.String()
}

// cachedRule is the JSON shape stored in Redis.
type cachedRule struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Severity     string   `json:"severity,omitempty"`
	Actions      []string `json:"actions,omitempty"`
	SubjectTypes []string `json:"subjectTypes,omitempty"`
	ActorIDs     []string `json:"actorIds,omitempty"`
	IPAddresses  []string `json:"ipAddresses,omitempty"`
}

// ActiveRules returns the tenant's active rules, from cache when fresh.
func (c *Cache) ActiveRules(ctx context.Context, tenantID id.TenantID) ([]*models.AlertRule, error) {
	if c.client != nil {
		if rules, ok := c.readCache(ctx, tenantID); ok {
			return rules, nil
		}
	}

	rules, err := c.store.List(ctx, tenantID, true)
	if err != nil {
		return nil, err
	}

	if c.client != nil {
		c.writeCache(ctx, tenantID, rules)
	}
	return rules, nil
}

// Invalidate drops the tenant's cached rule set. Called after every rule
// write; best-effort, a failed delete only extends staleness up to the TTL.
func (c *Cache) Invalidate(ctx context.Context, tenantID id.TenantID) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, cacheKey(tenantID)).Err(); err != nil && c.logger != nil {
		c.logger.Warn("rule cache invalidation failed",
			"tenant_id", tenantID,
			"error", err,
		)
	}
}

func (c *Cache) readCache(ctx context.Context, tenantID id.TenantID) ([]*models.AlertRule, bool) {
	raw, err := c.client.Get(ctx, cacheKey(tenantID)).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.Warn("rule cache read failed", "tenant_id", tenantID, "error", err)
		}
		return nil, false
	}

	var cached []cachedRule
	if err := json.Unmarshal(raw, &cached); err != nil {
		if c.logger != nil {
			c.logger.Warn("rule cache entry corrupt, discarding", "tenant_id", tenantID, "error", err)
		}
		return nil, false
	}

	rules := make([]*models.AlertRule, 0, len(cached))
	for _, cr := range cached {
		rule, err := decodeCached(tenantID, cr)
		if err != nil {
			return nil, false
		}
		rules = append(rules, rule)
	}
	return rules, true
}

func (c *Cache) writeCache(ctx context.Context, tenantID id.TenantID, rules []*models.AlertRule) {
	cached := make([]cachedRule, 0, len(rules))
	for _, r := range rules {
		cached = append(cached, encodeCached(r))
	}
	raw, err := json.Marshal(cached)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(tenantID), raw, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("rule cache write failed", "tenant_id", tenantID, "error", err)
	}
}

func encodeCached(r *models.AlertRule) cachedRule {
	cr := cachedRule{
		ID:           r.ID.String(),
		Name:         r.Name,
		Severity:     string(r.Severity),
		SubjectTypes: r.Conditions.SubjectTypes,
		IPAddresses:  r.Conditions.IPAddresses,
	}
	for _, a := range r.Conditions.Actions {
		cr.Actions = append(cr.Actions, string(a))
	}
	for _, actorID := range r.Conditions.ActorIDs {
		cr.ActorIDs = append(cr.ActorIDs, actorID.String())
	}
	return cr
}

func decodeCached(tenantID id.TenantID, cr cachedRule) (*models.AlertRule, error) {
	ruleID, err := uuid.Parse(cr.ID)
	if err != nil {
		return nil, err
	}
	rule := &models.AlertRule{
		ID:       id.RuleID(ruleID),
		TenantID: tenantID,
		Name:     cr.Name,
		Severity: audit.Severity(cr.Severity),
		Active:   true,
		Conditions: models.TriggerConditions{
			SubjectTypes: cr.SubjectTypes,
			IPAddresses:  cr.IPAddresses,
		},
	}
	for _, a := range cr.Actions {
		rule.Conditions.Actions = append(rule.Conditions.Actions, audit.Action(a))
	}
	for _, raw := range cr.ActorIDs {
		actorID, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		rule.Conditions.ActorIDs = append(rule.Conditions.ActorIDs, id.ActorID(actorID))
	}
	return rule, nil
}
