//go:build integration

package entry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"veritrail/internal/audit/models"
	"veritrail/internal/audit/store/entry"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
	"veritrail/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *entry.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = entry.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "audit_entries")
	s.Require().NoError(err)
}

func newTestEntry(tenantID id.TenantID, action models.Action, prevDigest string, n int) *models.Entry {
	return &models.Entry{
		ID:          id.NewEntryID(),
		TenantID:    tenantID,
		ActorID:     id.NewActorID(),
		Action:      action,
		Category:    models.CategoryData,
		Severity:    models.SeverityInfo,
		SubjectType: "document",
		SubjectID:   fmt.Sprintf("doc-%d", n),
		Metadata:    map[string]any{"n": float64(n)},
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
		Digest:      fmt.Sprintf("digest-%d", n),
		PrevDigest:  prevDigest,
	}
}

func (s *PostgresStoreSuite) seedChain(tenantID id.TenantID, actions ...models.Action) []*models.Entry {
	ctx := context.Background()
	prev := ""
	entries := make([]*models.Entry, 0, len(actions))
	for i, action := range actions {
		e := newTestEntry(tenantID, action, prev, i)
		s.Require().NoError(s.store.Insert(ctx, e))
		prev = e.Digest
		entries = append(entries, e)
	}
	return entries
}

func (s *PostgresStoreSuite) TestInsertAndGetRoundTrip() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	seeded := s.seedChain(tenantID, models.ActionCreate)[0]

	got, err := s.store.Get(ctx, tenantID, seeded.ID)
	s.Require().NoError(err)
	s.Equal(seeded.ID, got.ID)
	s.Equal(seeded.ActorID, got.ActorID)
	s.Equal(models.ActionCreate, got.Action)
	s.Equal(seeded.Metadata, got.Metadata)
	s.Equal(seeded.Digest, got.Digest)
	s.True(seeded.CreatedAt.Equal(got.CreatedAt))

	// The entry is invisible to other tenants.
	_, err = s.store.Get(ctx, id.NewTenantID(), seeded.ID)
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *PostgresStoreSuite) TestHeadTracksInsertionOrder() {
	ctx := context.Background()
	tenantID := id.NewTenantID()

	_, err := s.store.Head(ctx, tenantID)
	s.True(errors.Is(err, sentinel.ErrNotFound))

	seeded := s.seedChain(tenantID, models.ActionCreate, models.ActionUpdate, models.ActionDelete)

	head, err := s.store.Head(ctx, tenantID)
	s.Require().NoError(err)
	s.Equal(seeded[2].ID, head.ID)
	s.Equal(seeded[1].Digest, head.PrevDigest)
}

func (s *PostgresStoreSuite) TestListChainPreservesOrder() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	seeded := s.seedChain(tenantID, models.ActionCreate, models.ActionRead, models.ActionUpdate)
	s.seedChain(id.NewTenantID(), models.ActionDelete)

	chain, err := s.store.ListChain(ctx, tenantID)
	s.Require().NoError(err)
	s.Require().Len(chain, 3)
	for i, e := range chain {
		s.Equal(seeded[i].ID, e.ID)
	}
}

func (s *PostgresStoreSuite) TestListAppliesFilterAndLimit() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	s.seedChain(tenantID, models.ActionRead, models.ActionRead, models.ActionCreate)

	reads, err := s.store.List(ctx, tenantID, models.EntryFilter{
		Actions: []models.Action{models.ActionRead},
	})
	s.Require().NoError(err)
	s.Len(reads, 2)

	limited, err := s.store.List(ctx, tenantID, models.EntryFilter{Limit: 1})
	s.Require().NoError(err)
	s.Require().Len(limited, 1)
	s.Equal(models.ActionCreate, limited[0].Action)
}

func (s *PostgresStoreSuite) TestCountByActionGroup() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	s.seedChain(tenantID,
		models.ActionCreate, models.ActionUpdate, models.ActionRead, models.ActionLogin)

	total, err := s.store.Count(ctx, tenantID, models.EntryFilter{})
	s.Require().NoError(err)
	s.EqualValues(4, total)

	changes, err := s.store.Count(ctx, tenantID, models.EntryFilter{
		Actions: []models.Action{models.ActionCreate, models.ActionUpdate, models.ActionDelete},
	})
	s.Require().NoError(err)
	s.EqualValues(2, changes)
}
