package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "veritrail/internal/audit/models"
	entrystore "veritrail/internal/audit/store/entry"
	"veritrail/internal/compliance/service"
	"veritrail/internal/compliance/store/checkpoint"
	id "veritrail/pkg/domain"
	"veritrail/pkg/testutil"
)

func newTestRouter(t *testing.T, entries *entrystore.InMemoryStore) http.Handler {
	t.Helper()
	svc, err := service.New(checkpoint.NewInMemoryStore(), entries)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(svc, logger)
	r := chi.NewRouter()
	h.Register(r)
	h.RegisterAdmin(r)
	return r
}

func seedEntries(t *testing.T, entries *entrystore.InMemoryStore, tenantID id.TenantID, actions ...audit.Action) {
	t.Helper()
	for _, action := range actions {
		err := entries.Insert(context.Background(), &audit.Entry{
			ID:       id.NewEntryID(),
			TenantID: tenantID,
			Action:   action,
		})
		require.NoError(t, err)
	}
}

func TestCheckpointLifecycle(t *testing.T) {
	entries := entrystore.NewInMemoryStore()
	router := newTestRouter(t, entries)
	tenantID := id.NewTenantID()
	actorID := id.NewActorID()

	var checkpointID string

	testutil.Given(t, "a tenant with audit activity", func(t *testing.T) {
		seedEntries(t, entries, tenantID,
			audit.ActionCreate, audit.ActionUpdate, audit.ActionRead, audit.ActionLogin)
		seedEntries(t, entries, id.NewTenantID(), audit.ActionDelete)
	})

	testutil.When(t, "an admin creates a checkpoint", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/compliance/checkpoints", map[string]any{
			"name":        "q3 retention review",
			"requirement": "SOC2 CC7.2",
		})
		rr := testutil.DoRequest(router, testutil.WithAuth(req, tenantID.String(), actorID.String()))
		testutil.AssertStatus(t, rr, http.StatusCreated)

		resp := testutil.UnmarshalResponse[checkpointResponse](t, rr)
		assert.Equal(t, "PENDING_VERIFICATION", resp.Status)
		assert.EqualValues(t, 4, resp.Statistics.TotalEntries)
		assert.EqualValues(t, 2, resp.Statistics.ChangeRecords)
		assert.EqualValues(t, 1, resp.Statistics.AccessRecords)
		assert.EqualValues(t, 1, resp.Statistics.LoginRecords)
		checkpointID = resp.ID
	})

	testutil.Then(t, "verification transitions it to compliant", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodPost, "/compliance/checkpoints/"+checkpointID+"/verify")
		rr := testutil.DoRequest(router, testutil.WithAuth(req, tenantID.String(), actorID.String()))
		testutil.AssertStatus(t, rr, http.StatusOK)

		resp := testutil.UnmarshalResponse[checkpointResponse](t, rr)
		assert.Equal(t, "COMPLIANT", resp.Status)
		assert.Equal(t, actorID.String(), resp.VerifiedBy)
		require.NotNil(t, resp.VerifiedAt)
	})

	testutil.Then(t, "the checkpoint is listed for the tenant", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/compliance/checkpoints")
		rr := testutil.DoRequest(router, testutil.WithAuth(req, tenantID.String(), actorID.String()))
		testutil.AssertStatus(t, rr, http.StatusOK)

		resp := testutil.UnmarshalResponse[struct {
			Checkpoints []checkpointResponse `json:"checkpoints"`
		}](t, rr)
		require.Len(t, resp.Checkpoints, 1)
		assert.Equal(t, checkpointID, resp.Checkpoints[0].ID)
	})
}

func TestCheckpointCreateRequiresAuth(t *testing.T) {
	router := newTestRouter(t, entrystore.NewInMemoryStore())

	req := testutil.NewJSONRequest(t, http.MethodPost, "/compliance/checkpoints", map[string]any{
		"name": "unauthenticated",
	})
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestCheckpointCreateRequiresName(t *testing.T) {
	router := newTestRouter(t, entrystore.NewInMemoryStore())

	req := testutil.NewJSONRequest(t, http.MethodPost, "/compliance/checkpoints", map[string]any{
		"name": "   ",
	})
	rr := testutil.DoRequest(router, testutil.WithAuth(req, id.NewTenantID().String(), id.NewActorID().String()))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}

func TestCheckpointGetUnknown(t *testing.T) {
	router := newTestRouter(t, entrystore.NewInMemoryStore())
	tenantID := id.NewTenantID()

	req := testutil.NewRequest(t, http.MethodGet, "/compliance/checkpoints/"+id.NewCheckpointID().String())
	rr := testutil.DoRequest(router, testutil.WithTenant(req, tenantID.String()))
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")

	bad := testutil.NewRequest(t, http.MethodGet, "/compliance/checkpoints/not-a-uuid")
	rr = testutil.DoRequest(router, testutil.WithTenant(bad, tenantID.String()))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}
