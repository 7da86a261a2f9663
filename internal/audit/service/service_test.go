package service

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritrail/internal/audit/hashchain"
	"veritrail/internal/audit/models"
	"veritrail/internal/audit/redact"
	"veritrail/internal/audit/store/entry"
	"veritrail/internal/notify"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/requestcontext"
)

type recordingEvaluator struct {
	mu      sync.Mutex
	entries []*models.Entry
}

func (r *recordingEvaluator) Submit(e *models.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingEvaluator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func newService(t *testing.T, opts ...Option) (*Service, *entry.InMemoryStore, *notify.MemoryPublisher) {
	t.Helper()
	store := entry.NewInMemoryStore()
	publisher := notify.NewMemoryPublisher()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	opts = append([]Option{WithPublisher(publisher), WithLogger(logger)}, opts...)
	svc, err := New(store, opts...)
	require.NoError(t, err)
	return svc, store, publisher
}

func appendReq(tenantID id.TenantID) models.AppendRequest {
	return models.AppendRequest{
		TenantID:    tenantID,
		ActorID:     id.NewActorID(),
		Action:      models.ActionCreate,
		Category:    models.CategoryData,
		SubjectType: "credit_application",
		SubjectID:   "app-1",
		Description: "application created",
		Metadata:    map[string]any{"amount": 1200},
	}
}

func TestAppend_BuildsLinkedChain(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	tenantID := id.NewTenantID()

	var appended []*models.Entry
	for range 4 {
		e, err := svc.Append(ctx, appendReq(tenantID))
		require.NoError(t, err)
		appended = append(appended, e)
	}

	chain, err := store.ListChain(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, chain, 4)

	assert.Empty(t, chain[0].PrevDigest, "first entry has no predecessor")
	for i := 1; i < len(chain); i++ {
		assert.Equal(t, chain[i-1].Digest, chain[i].PrevDigest,
			"entry %d must link to its predecessor", i)
	}
	for i, e := range chain {
		assert.Equal(t, appended[i].ID, e.ID)
		assert.NotEmpty(t, e.Digest)
	}
}

func TestAppend_RedactsBeforePersisting(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	tenantID := id.NewTenantID()

	req := appendReq(tenantID)
	req.Metadata = map[string]any{
		"password": "hunter2",
		"nested":   map[string]any{"ssn": "123-45-6789"},
		"note":     "kept",
	}

	e, err := svc.Append(ctx, req)
	require.NoError(t, err)

	stored, err := store.Get(ctx, tenantID, e.ID)
	require.NoError(t, err)
	assert.Equal(t, redact.Marker, stored.Metadata["password"])
	assert.Equal(t, redact.Marker, stored.Metadata["nested"].(map[string]any)["ssn"])
	assert.Equal(t, "kept", stored.Metadata["note"])
}

func TestAppend_StripsSmuggledIntegrityKeys(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	tenantID := id.NewTenantID()

	req := appendReq(tenantID)
	req.Metadata = map[string]any{"hash": "forged", "previousHash": "forged", "ok": true}

	e, err := svc.Append(ctx, req)
	require.NoError(t, err)

	stored, err := store.Get(ctx, tenantID, e.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.Metadata, "hash")
	assert.NotContains(t, stored.Metadata, "previousHash")
}

func TestAppend_ValidatesInput(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	t.Run("missing tenant", func(t *testing.T) {
		req := appendReq(id.TenantID{})
		_, err := svc.Append(ctx, req)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("unknown action", func(t *testing.T) {
		req := appendReq(id.NewTenantID())
		req.Action = "EXPLODE"
		_, err := svc.Append(ctx, req)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("defaults category and severity", func(t *testing.T) {
		req := appendReq(id.NewTenantID())
		req.Category = ""
		req.Severity = ""
		e, err := svc.Append(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, models.CategorySystem, e.Category)
		assert.Equal(t, models.SeverityInfo, e.Severity)
	})
}

func TestAppend_PublishesEntryLogged(t *testing.T) {
	ctx := context.Background()
	svc, _, publisher := newService(t)
	tenantID := id.NewTenantID()

	e, err := svc.Append(ctx, appendReq(tenantID))
	require.NoError(t, err)

	events := publisher.ByKind(notify.KindEntryLogged)
	require.Len(t, events, 1)
	assert.Equal(t, tenantID, events[0].TenantID)
	assert.Equal(t, e.ID, events[0].EntryID)
	assert.Equal(t, string(models.ActionCreate), events[0].Action)
}

func TestAppend_SubmitsEachEntryOnceForEvaluation(t *testing.T) {
	ctx := context.Background()
	evaluator := &recordingEvaluator{}
	svc, _, _ := newService(t, WithEvaluator(evaluator))
	tenantID := id.NewTenantID()

	for range 3 {
		_, err := svc.Append(ctx, appendReq(tenantID))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, evaluator.count())
}

func TestAppend_ClientMetadataFromContext(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := requestcontext.WithClientMetadata(context.Background(), "203.0.113.9", "Mozilla/5.0")

	e, err := svc.Append(ctx, appendReq(id.NewTenantID()))
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", e.IPAddress)
	assert.Equal(t, "Mozilla/5.0", e.UserAgent)
}

func TestAppend_MonotonicCreationTime(t *testing.T) {
	svc, store, _ := newService(t)
	tenantID := id.NewTenantID()

	later := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	_, err := svc.Append(requestcontext.WithTime(context.Background(), later), appendReq(tenantID))
	require.NoError(t, err)
	// Wall clock steps backwards; write order still wins.
	_, err = svc.Append(requestcontext.WithTime(context.Background(), earlier), appendReq(tenantID))
	require.NoError(t, err)

	chain, err := store.ListChain(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.False(t, chain[1].CreatedAt.Before(chain[0].CreatedAt))
}

// Postgres timestamptz stores microseconds, so an entry stamped with finer
// precision would recompute to a different digest once reloaded. The stamp
// must already be microsecond-exact.
func TestAppend_DigestSurvivesTimestampRoundTrip(t *testing.T) {
	svc, store, _ := newService(t)
	tenantID := id.NewTenantID()

	wallClock := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), wallClock)

	e, err := svc.Append(ctx, appendReq(tenantID))
	require.NoError(t, err)
	assert.True(t, e.CreatedAt.Equal(e.CreatedAt.Truncate(time.Microsecond)),
		"creation time must not carry sub-microsecond precision")

	stored, err := store.Get(context.Background(), tenantID, e.ID)
	require.NoError(t, err)
	stored.CreatedAt = stored.CreatedAt.Truncate(time.Microsecond)

	ok, err := hashchain.Matches(stored, stored.PrevDigest)
	require.NoError(t, err)
	assert.True(t, ok, "digest must match after a timestamptz round-trip")
}

// N concurrent appends to one tenant must produce a chain of length N with
// no forks: no two entries may claim the same predecessor digest.
func TestAppend_ConcurrentSameTenantNoForks(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	tenantID := id.NewTenantID()
	const writers = 50

	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Append(ctx, appendReq(tenantID))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	chain, err := store.ListChain(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, chain, writers)

	seenPrev := make(map[string]bool)
	for _, e := range chain {
		require.False(t, seenPrev[e.PrevDigest],
			"two entries share previous digest %q: chain forked", e.PrevDigest)
		seenPrev[e.PrevDigest] = true
	}

	result, err := svc.VerifyChain(ctx, tenantID, VerifyOptions{})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestAppend_ConcurrentAcrossTenants(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	const tenants = 8
	const perTenant = 10

	var wg sync.WaitGroup
	tenantIDs := make([]id.TenantID, tenants)
	for i := range tenantIDs {
		tenantIDs[i] = id.NewTenantID()
	}
	for _, tenantID := range tenantIDs {
		for range perTenant {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.Append(ctx, appendReq(tenantID))
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	for _, tenantID := range tenantIDs {
		result, err := svc.VerifyChain(ctx, tenantID, VerifyOptions{})
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Equal(t, perTenant, result.Checked)
	}
}

func TestGet_NotFoundIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	tenantA := id.NewTenantID()

	e, err := svc.Append(ctx, appendReq(tenantA))
	require.NoError(t, err)

	_, err = svc.Get(ctx, id.NewTenantID(), e.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
