package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritrail/internal/audit/service"
	"veritrail/internal/audit/store/entry"
	id "veritrail/pkg/domain"
	"veritrail/pkg/requestcontext"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, err := service.New(entry.NewInMemoryStore())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(svc, logger)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, target string, body any, tenantID id.TenantID, actorID id.ActorID) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := req.Context()
	if !tenantID.IsNil() {
		ctx = requestcontext.WithTenantID(ctx, tenantID)
	}
	if !actorID.IsNil() {
		ctx = requestcontext.WithActorID(ctx, actorID)
	}
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleAppend(t *testing.T) {
	router := newTestRouter(t)
	tenantID := id.NewTenantID()
	actorID := id.NewActorID()

	first := doRequest(t, router, http.MethodPost, "/audit/entries", map[string]any{
		"action":      "CREATE",
		"category":    "DATA",
		"subjectType": "document",
		"subjectId":   "doc-1",
		"metadata":    map[string]any{"password": "hunter2", "field": "name"},
	}, tenantID, actorID)
	require.Equal(t, http.StatusCreated, first.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &created))
	assert.Equal(t, "CREATE", created["action"])
	assert.Equal(t, actorID.String(), created["actorId"])
	assert.NotEmpty(t, created["hash"])
	assert.Nil(t, created["previousHash"])

	metadata := created["metadata"].(map[string]any)
	assert.Equal(t, "[REDACTED]", metadata["password"])
	assert.Equal(t, "name", metadata["field"])

	second := doRequest(t, router, http.MethodPost, "/audit/entries", map[string]any{
		"action": "UPDATE",
	}, tenantID, actorID)
	require.Equal(t, http.StatusCreated, second.Code)

	var next map[string]any
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &next))
	assert.Equal(t, created["hash"], next["previousHash"])
}

func TestHandleAppendRejectsUnknownAction(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/audit/entries", map[string]any{
		"action": "SHRED",
	}, id.NewTenantID(), id.NewActorID())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAppendRequiresTenant(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/audit/entries", map[string]any{
		"action": "CREATE",
	}, id.TenantID{}, id.ActorID{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleGet(t *testing.T) {
	router := newTestRouter(t)
	tenantID := id.NewTenantID()

	created := doRequest(t, router, http.MethodPost, "/audit/entries", map[string]any{
		"action": "READ",
	}, tenantID, id.NewActorID())
	require.Equal(t, http.StatusCreated, created.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &body))
	entryID := body["id"].(string)

	got := doRequest(t, router, http.MethodGet, "/audit/entries/"+entryID, nil, tenantID, id.ActorID{})
	assert.Equal(t, http.StatusOK, got.Code)

	// Another tenant cannot address the entry.
	other := doRequest(t, router, http.MethodGet, "/audit/entries/"+entryID, nil, id.NewTenantID(), id.ActorID{})
	assert.Equal(t, http.StatusNotFound, other.Code)

	bad := doRequest(t, router, http.MethodGet, "/audit/entries/not-a-uuid", nil, tenantID, id.ActorID{})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestHandleList(t *testing.T) {
	router := newTestRouter(t)
	tenantID := id.NewTenantID()

	for _, action := range []string{"CREATE", "READ", "READ"} {
		w := doRequest(t, router, http.MethodPost, "/audit/entries", map[string]any{
			"action": action,
		}, tenantID, id.NewActorID())
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doRequest(t, router, http.MethodGet, "/audit/entries?action=READ", nil, tenantID, id.ActorID{})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Entries []map[string]any `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Entries, 2)

	bad := doRequest(t, router, http.MethodGet, "/audit/entries?limit=nope", nil, tenantID, id.ActorID{})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestHandleListTimeWindow(t *testing.T) {
	router := newTestRouter(t)
	tenantID := id.NewTenantID()

	for range 2 {
		w := doRequest(t, router, http.MethodPost, "/audit/entries", map[string]any{
			"action": "LOGIN",
		}, tenantID, id.NewActorID())
		require.Equal(t, http.StatusCreated, w.Code)
	}

	var resp struct {
		Entries []map[string]any `json:"entries"`
	}

	past := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	future := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)

	within := doRequest(t, router, http.MethodGet, "/audit/entries?since="+past+"&until="+future, nil, tenantID, id.ActorID{})
	require.Equal(t, http.StatusOK, within.Code)
	require.NoError(t, json.Unmarshal(within.Body.Bytes(), &resp))
	assert.Len(t, resp.Entries, 2)

	after := doRequest(t, router, http.MethodGet, "/audit/entries?since="+future, nil, tenantID, id.ActorID{})
	require.Equal(t, http.StatusOK, after.Code)
	resp.Entries = nil
	require.NoError(t, json.Unmarshal(after.Body.Bytes(), &resp))
	assert.Empty(t, resp.Entries)

	bad := doRequest(t, router, http.MethodGet, "/audit/entries?since=yesterday", nil, tenantID, id.ActorID{})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestHandleVerify(t *testing.T) {
	router := newTestRouter(t)
	tenantID := id.NewTenantID()

	for range 3 {
		w := doRequest(t, router, http.MethodPost, "/audit/entries", map[string]any{
			"action": "UPDATE",
		}, tenantID, id.NewActorID())
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doRequest(t, router, http.MethodPost, "/audit/verify", nil, tenantID, id.ActorID{})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["valid"])
	assert.EqualValues(t, 3, resp["checked"])
	assert.Nil(t, resp["brokenAt"])
}

func TestHandleVerifyUnknownBound(t *testing.T) {
	router := newTestRouter(t)
	tenantID := id.NewTenantID()

	w := doRequest(t, router, http.MethodPost, "/audit/verify", map[string]any{
		"startEntryId": id.NewEntryID().String(),
	}, tenantID, id.ActorID{})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
