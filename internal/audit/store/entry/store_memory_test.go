package entry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritrail/internal/audit/models"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

func newEntry(tenantID id.TenantID, action models.Action) *models.Entry {
	return &models.Entry{
		ID:        id.NewEntryID(),
		TenantID:  tenantID,
		Action:    action,
		Category:  models.CategoryData,
		Severity:  models.SeverityInfo,
		Metadata:  map[string]any{"k": "v"},
		CreatedAt: time.Now(),
		Digest:    "digest-" + time.Now().String(),
	}
}

func TestInMemoryStore_HeadFollowsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	tenantID := id.NewTenantID()

	_, err := store.Head(ctx, tenantID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	first := newEntry(tenantID, models.ActionCreate)
	second := newEntry(tenantID, models.ActionUpdate)
	require.NoError(t, store.Insert(ctx, first))
	require.NoError(t, store.Insert(ctx, second))

	head, err := store.Head(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, head.ID)
}

func TestInMemoryStore_RejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	entry := newEntry(id.NewTenantID(), models.ActionCreate)

	require.NoError(t, store.Insert(ctx, entry))
	assert.ErrorIs(t, store.Insert(ctx, entry), sentinel.ErrConflict)
}

func TestInMemoryStore_GetIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	tenantA := id.NewTenantID()
	tenantB := id.NewTenantID()

	entry := newEntry(tenantA, models.ActionCreate)
	require.NoError(t, store.Insert(ctx, entry))

	got, err := store.Get(ctx, tenantA, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)

	// The other tenant sees NotFound, not a hint that the entry exists.
	_, err = store.Get(ctx, tenantB, entry.ID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_ListChainAscending(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	tenantID := id.NewTenantID()

	var inserted []id.EntryID
	for range 5 {
		e := newEntry(tenantID, models.ActionCreate)
		require.NoError(t, store.Insert(ctx, e))
		inserted = append(inserted, e.ID)
	}

	chain, err := store.ListChain(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, chain, 5)
	for i, e := range chain {
		assert.Equal(t, inserted[i], e.ID)
	}
}

func TestInMemoryStore_ListFiltersAndLimits(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	tenantID := id.NewTenantID()

	require.NoError(t, store.Insert(ctx, newEntry(tenantID, models.ActionCreate)))
	require.NoError(t, store.Insert(ctx, newEntry(tenantID, models.ActionRead)))
	require.NoError(t, store.Insert(ctx, newEntry(tenantID, models.ActionRead)))

	reads, err := store.List(ctx, tenantID, models.EntryFilter{
		Actions: []models.Action{models.ActionRead},
	})
	require.NoError(t, err)
	assert.Len(t, reads, 2)

	limited, err := store.List(ctx, tenantID, models.EntryFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestInMemoryStore_CountByActions(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	tenantID := id.NewTenantID()

	require.NoError(t, store.Insert(ctx, newEntry(tenantID, models.ActionCreate)))
	require.NoError(t, store.Insert(ctx, newEntry(tenantID, models.ActionUpdate)))
	require.NoError(t, store.Insert(ctx, newEntry(tenantID, models.ActionRead)))

	changes, err := store.Count(ctx, tenantID, models.EntryFilter{
		Actions: []models.Action{models.ActionCreate, models.ActionUpdate, models.ActionDelete},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), changes)

	total, err := store.Count(ctx, tenantID, models.EntryFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	tenantID := id.NewTenantID()

	entry := newEntry(tenantID, models.ActionCreate)
	require.NoError(t, store.Insert(ctx, entry))

	head, err := store.Head(ctx, tenantID)
	require.NoError(t, err)
	head.Digest = "mutated"
	head.Metadata["k"] = "mutated"

	again, err := store.Head(ctx, tenantID)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.Digest)
	assert.Equal(t, "v", again.Metadata["k"])
}
