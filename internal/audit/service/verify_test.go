package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritrail/internal/audit/hashchain"
	"veritrail/internal/audit/models"
	"veritrail/internal/audit/store/entry"
	"veritrail/internal/notify"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
)

// buildChain appends n entries and returns them in creation order.
func buildChain(t *testing.T, svc *Service, tenantID id.TenantID, n int) []*models.Entry {
	t.Helper()
	out := make([]*models.Entry, 0, n)
	for range n {
		e, err := svc.Append(context.Background(), appendReq(tenantID))
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

// rebuildTampered re-inserts a chain into a fresh store with one entry
// replaced, preserving stored digests, to simulate in-place tampering.
func rebuildTampered(t *testing.T, chain []*models.Entry, index int, mutate func(*models.Entry)) *entry.InMemoryStore {
	t.Helper()
	store := entry.NewInMemoryStore()
	for i, e := range chain {
		cp := *e
		if i == index {
			mutate(&cp)
		}
		require.NoError(t, store.Insert(context.Background(), &cp))
	}
	return store
}

func TestVerifyChain_EmptyChainIsValid(t *testing.T) {
	svc, _, _ := newService(t)

	result, err := svc.VerifyChain(context.Background(), id.NewTenantID(), VerifyOptions{})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Nil(t, result.BrokenAt)
}

func TestVerifyChain_SingleEntry(t *testing.T) {
	svc, _, _ := newService(t)
	tenantID := id.NewTenantID()
	buildChain(t, svc, tenantID, 1)

	result, err := svc.VerifyChain(context.Background(), tenantID, VerifyOptions{})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 1, result.Checked)
}

func TestVerifyChain_DetectsContentTampering(t *testing.T) {
	svc, _, _ := newService(t)
	tenantID := id.NewTenantID()
	chain := buildChain(t, svc, tenantID, 3)

	// Mutate a projection field of entry[1], keep its stored digest.
	tampered := rebuildTampered(t, chain, 1, func(e *models.Entry) {
		e.SubjectID = "tampered"
	})
	tamperedSvc, err := New(tampered)
	require.NoError(t, err)

	result, err := tamperedSvc.VerifyChain(context.Background(), tenantID, VerifyOptions{})
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.NotNil(t, result.BrokenAt)
	assert.Equal(t, chain[1].ID, *result.BrokenAt)
}

func TestVerifyChain_DetectsPrevDigestTampering(t *testing.T) {
	svc, _, _ := newService(t)
	tenantID := id.NewTenantID()
	chain := buildChain(t, svc, tenantID, 3)

	tampered := rebuildTampered(t, chain, 1, func(e *models.Entry) {
		e.PrevDigest = "0000000000000000000000000000000000000000000000000000000000000000"
	})
	tamperedSvc, err := New(tampered)
	require.NoError(t, err)

	result, err := tamperedSvc.VerifyChain(context.Background(), tenantID, VerifyOptions{})
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Equal(t, chain[1].ID, *result.BrokenAt)
}

func TestVerifyChain_DetectsForgedInsertion(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	tenantID := id.NewTenantID()
	chain := buildChain(t, svc, tenantID, 2)

	// A forged entry claiming the same predecessor as chain[1].
	forged := &models.Entry{
		ID:        id.NewEntryID(),
		TenantID:  tenantID,
		Action:    models.ActionDelete,
		Category:  models.CategoryData,
		Severity:  models.SeverityHigh,
		CreatedAt: chain[1].CreatedAt,
	}
	require.NoError(t, hashchain.Stamp(forged, chain[0].Digest))
	require.NoError(t, store.Insert(ctx, forged))

	result, err := svc.VerifyChain(ctx, tenantID, VerifyOptions{})
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Equal(t, forged.ID, *result.BrokenAt)
}

func TestVerifyChain_PublishesIntegrityBroken(t *testing.T) {
	svc, store, publisher := newService(t)
	tenantID := id.NewTenantID()
	chain := buildChain(t, svc, tenantID, 3)

	store.Clear()
	for i, e := range chain {
		cp := *e
		if i == 2 {
			cp.Digest = "not the real digest"
		}
		require.NoError(t, store.Insert(context.Background(), &cp))
	}

	result, err := svc.VerifyChain(context.Background(), tenantID, VerifyOptions{})
	require.NoError(t, err)
	require.False(t, result.Valid)

	events := publisher.ByKind(notify.KindIntegrityBroken)
	require.Len(t, events, 1)
	assert.Equal(t, tenantID, events[0].TenantID)
	assert.Equal(t, chain[2].ID, events[0].EntryID)
}

func TestVerifyChain_RangeBounds(t *testing.T) {
	svc, _, _ := newService(t)
	tenantID := id.NewTenantID()
	chain := buildChain(t, svc, tenantID, 5)

	t.Run("verifies sub-range seeded by stored previous digest", func(t *testing.T) {
		result, err := svc.VerifyChain(context.Background(), tenantID, VerifyOptions{
			StartEntryID: chain[2].ID,
			EndEntryID:   chain[4].ID,
		})
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Equal(t, 3, result.Checked)
	})

	t.Run("unknown bound reports NotFound", func(t *testing.T) {
		_, err := svc.VerifyChain(context.Background(), tenantID, VerifyOptions{
			StartEntryID: id.NewEntryID(),
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("inverted bounds rejected", func(t *testing.T) {
		_, err := svc.VerifyChain(context.Background(), tenantID, VerifyOptions{
			StartEntryID: chain[3].ID,
			EndEntryID:   chain[1].ID,
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}
