package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/metricdock/metricdock/internal/clock"
	"github.com/metricdock/metricdock/internal/config"
	connectiondomain "github.com/metricdock/metricdock/internal/connection/domain"
	docstoredomain "github.com/metricdock/metricdock/internal/docstore/domain"
	"github.com/metricdock/metricdock/internal/stripeclient"
	stripesyncdomain "github.com/metricdock/metricdock/internal/stripesync/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConnService struct {
	connectReq    *connectiondomain.ConnectRequest
	connectErr    error
	getConn       connectiondomain.Connection
	getErr        error
	disconnects   int
	runs          []connectiondomain.SyncRun
	lastRunsLimit int
}

func (f *fakeConnService) Connect(ctx context.Context, req connectiondomain.ConnectRequest) (connectiondomain.Connection, error) {
	f.connectReq = &req
	if f.connectErr != nil {
		return connectiondomain.Connection{}, f.connectErr
	}
	token := req.AccessToken
	conn := connectiondomain.Connection{
		Provider: req.Provider,
		Status:   connectiondomain.StatusDisconnected,
	}
	if token != "" {
		conn.AccessToken = &token
	}
	if req.LegacyAPIKey != "" {
		key := req.LegacyAPIKey
		conn.LegacyAPIKey = &key
	}
	return conn, nil
}

func (f *fakeConnService) Disconnect(ctx context.Context, provider connectiondomain.Provider) error {
	f.disconnects++
	return nil
}

func (f *fakeConnService) Get(ctx context.Context, provider connectiondomain.Provider) (connectiondomain.Connection, error) {
	if f.getErr != nil {
		return connectiondomain.Connection{}, f.getErr
	}
	return f.getConn, nil
}

func (f *fakeConnService) ListRuns(ctx context.Context, req connectiondomain.ListRunsRequest) ([]connectiondomain.SyncRun, error) {
	f.lastRunsLimit = req.Limit
	return f.runs, nil
}

func (f *fakeConnService) BeginSync(ctx context.Context, provider connectiondomain.Provider, syncType connectiondomain.SyncType) (connectiondomain.Connection, connectiondomain.SyncRun, error) {
	return connectiondomain.Connection{}, connectiondomain.SyncRun{}, nil
}

func (f *fakeConnService) CompleteSync(ctx context.Context, run connectiondomain.SyncRun, completion connectiondomain.RunCompletion) error {
	return nil
}

type fakeSyncSvc struct {
	req    *stripesyncdomain.SyncRequest
	result stripesyncdomain.SyncResult
	err    error
}

func (f *fakeSyncSvc) Sync(ctx context.Context, req stripesyncdomain.SyncRequest) (stripesyncdomain.SyncResult, error) {
	f.req = &req
	return f.result, f.err
}

type fakeVerifier struct {
	resolveErr error
	verifyErr  error
}

func (f *fakeVerifier) Resolve(src stripeclient.CredentialSource) (stripeclient.Credentials, error) {
	if f.resolveErr != nil {
		return stripeclient.Credentials{}, f.resolveErr
	}
	if src.PlatformAccountID == "" && src.AccessToken == "" && src.LegacyAPIKey == "" {
		return stripeclient.Credentials{}, stripeclient.ErrNoCredentials
	}
	return stripeclient.Credentials{SecretKey: "sk_resolved"}, nil
}

func (f *fakeVerifier) VerifyCredentials(ctx context.Context, creds stripeclient.Credentials) error {
	return f.verifyErr
}

type fakeCountStore struct {
	counts map[string]int64
	purged []string
}

func (f *fakeCountStore) Get(ctx context.Context, collection, docID string) (*docstoredomain.Document, error) {
	return nil, docstoredomain.ErrNotFound
}

func (f *fakeCountStore) QueryByOrganization(ctx context.Context, collection string, orgID snowflake.ID) ([]docstoredomain.Document, error) {
	return nil, nil
}

func (f *fakeCountStore) CountByOrganization(ctx context.Context, collection string, orgID snowflake.ID) (int64, error) {
	return f.counts[collection], nil
}

func (f *fakeCountStore) CommitBatch(ctx context.Context, ops []docstoredomain.Operation) error {
	return nil
}

func (f *fakeCountStore) PurgeOrganization(ctx context.Context, collection string, orgID snowflake.ID) (int64, error) {
	f.purged = append(f.purged, collection)
	return 2, nil
}

type testServerFixture struct {
	srv      *Server
	connSvc  *fakeConnService
	syncSvc  *fakeSyncSvc
	store    *fakeCountStore
	verifier *fakeVerifier
	clock    *clock.FakeClock
}

func newTestServer(t *testing.T) *testServerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	connSvc := &fakeConnService{}
	syncSvc := &fakeSyncSvc{}
	store := &fakeCountStore{counts: map[string]int64{}}
	verifier := &fakeVerifier{}
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	srv := &Server{
		engine:  engine,
		cfg:     config.Config{SyncLeaseSeconds: 1800},
		log:     zap.NewNop(),
		clock:   fakeClock,
		connSvc: connSvc,
		syncSvc: syncSvc,
		store:   store,
		client:  verifier,
	}
	srv.registerAPIRoutes()

	return &testServerFixture{
		srv:      srv,
		connSvc:  connSvc,
		syncSvc:  syncSvc,
		store:    store,
		verifier: verifier,
		clock:    fakeClock,
	}
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	return rec
}

func TestConnectStripeTrimsAndForwardsCredentials(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(t, f.srv, http.MethodPost, "/v1/organizations/1234/integrations/stripe/connect", gin.H{
		"apiKey": "  sk_test_123  ",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.connSvc.connectReq)
	assert.Equal(t, "sk_test_123", f.connSvc.connectReq.LegacyAPIKey)

	var resp struct {
		Data connectionView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Data.HasCredentials)
	assert.Equal(t, "stripe", resp.Data.Provider)
}

func TestConnectStripeMissingCredentialsAnswers400(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(t, f.srv, http.MethodPost, "/v1/organizations/1234/integrations/stripe/connect", gin.H{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_error")
	assert.Nil(t, f.connSvc.connectReq)
}

func TestConnectStripeRejectedKeyIsNotPersisted(t *testing.T) {
	f := newTestServer(t)
	f.verifier.verifyErr = &stripeclient.APIError{StatusCode: 401, Message: "Invalid API Key provided"}

	rec := doRequest(t, f.srv, http.MethodPost, "/v1/organizations/1234/integrations/stripe/connect", gin.H{
		"apiKey": "sk_bad",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, f.connSvc.connectReq)
}

func TestOrgContextRejectsMalformedID(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(t, f.srv, http.MethodGet, "/v1/organizations/not-a-number/integrations/stripe/status", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_organization")
}

func TestGetStripeStatusIncludesDocumentCounts(t *testing.T) {
	f := newTestServer(t)
	f.connSvc.getConn = connectiondomain.Connection{
		Provider: connectiondomain.ProviderStripe,
		Status:   connectiondomain.StatusConnected,
	}
	f.store.counts[stripesyncdomain.CollectionPayments] = 42
	f.store.counts[stripesyncdomain.CollectionCustomers] = 7

	rec := doRequest(t, f.srv, http.MethodGet, "/v1/organizations/1234/integrations/stripe/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data struct {
			Connection connectionView   `json:"connection"`
			Documents  map[string]int64 `json:"documents"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "connected", resp.Data.Connection.Status)
	assert.Equal(t, int64(42), resp.Data.Documents[stripesyncdomain.CollectionPayments])
	assert.Equal(t, int64(7), resp.Data.Documents[stripesyncdomain.CollectionCustomers])
	assert.Len(t, resp.Data.Documents, len(stripesyncdomain.Collections))
}

func TestGetStripeStatusDowngradesExpiredLease(t *testing.T) {
	f := newTestServer(t)
	stale := f.clock.Now().Add(-time.Hour)
	f.connSvc.getConn = connectiondomain.Connection{
		Provider:      connectiondomain.ProviderStripe,
		Status:        connectiondomain.StatusSyncing,
		SyncStartedAt: &stale,
	}

	rec := doRequest(t, f.srv, http.MethodGet, "/v1/organizations/1234/integrations/stripe/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"error"`)
	assert.Contains(t, rec.Body.String(), "sync lease expired")
}

func TestGetStripeStatusLiveLeaseStaysSyncing(t *testing.T) {
	f := newTestServer(t)
	recent := f.clock.Now().Add(-time.Minute)
	f.connSvc.getConn = connectiondomain.Connection{
		Provider:      connectiondomain.ProviderStripe,
		Status:        connectiondomain.StatusSyncing,
		SyncStartedAt: &recent,
	}

	rec := doRequest(t, f.srv, http.MethodGet, "/v1/organizations/1234/integrations/stripe/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"syncing"`)
}

func TestGetStripeStatusUnknownConnectionAnswers404(t *testing.T) {
	f := newTestServer(t)
	f.connSvc.getErr = connectiondomain.ErrNotFound

	rec := doRequest(t, f.srv, http.MethodGet, "/v1/organizations/1234/integrations/stripe/status", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerStripeSyncForwardsOverrides(t *testing.T) {
	f := newTestServer(t)
	f.syncSvc.result = stripesyncdomain.SyncResult{Success: true, Payments: 3}

	rec := doRequest(t, f.srv, http.MethodPost, "/v1/organizations/1234/integrations/stripe/sync", gin.H{
		"syncType":      "incremental",
		"maxPages":      5,
		"createdAfter":  1700000000,
		"createdBefore": 1700100000,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.syncSvc.req)
	assert.Equal(t, connectiondomain.SyncTypeIncremental, f.syncSvc.req.SyncType)
	assert.Equal(t, 5, f.syncSvc.req.MaxPages)
	assert.Equal(t, int64(1700000000), f.syncSvc.req.CreatedAfter)
	assert.Equal(t, int64(1700100000), f.syncSvc.req.CreatedBefore)
}

func TestTriggerStripeSyncPartialFailureIsStill200(t *testing.T) {
	f := newTestServer(t)
	f.syncSvc.result = stripesyncdomain.SyncResult{
		Success: false,
		Errors:  []string{"Subscriptions sync error: boom"},
	}

	rec := doRequest(t, f.srv, http.MethodPost, "/v1/organizations/1234/integrations/stripe/sync", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Contains(t, rec.Body.String(), "Subscriptions sync error")
}

func TestTriggerStripeSyncBusyAnswers409(t *testing.T) {
	f := newTestServer(t)
	f.syncSvc.err = connectiondomain.ErrSyncInProgress

	rec := doRequest(t, f.srv, http.MethodPost, "/v1/organizations/1234/integrations/stripe/sync", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTriggerStripeSyncRejectedCredentialsAnswers400(t *testing.T) {
	f := newTestServer(t)
	f.syncSvc.err = stripesyncdomain.ErrCredentialsRejected

	rec := doRequest(t, f.srv, http.MethodPost, "/v1/organizations/1234/integrations/stripe/sync", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerStripeSyncRejectsUnknownSyncType(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(t, f.srv, http.MethodPost, "/v1/organizations/1234/integrations/stripe/sync", gin.H{
		"syncType": "sideways",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, f.syncSvc.req)
}

func TestListStripeSyncRunsForwardsLimit(t *testing.T) {
	f := newTestServer(t)
	f.connSvc.runs = []connectiondomain.SyncRun{{Status: connectiondomain.RunStatusSucceeded}}

	rec := doRequest(t, f.srv, http.MethodGet, "/v1/organizations/1234/integrations/stripe/runs?limit=5", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, f.connSvc.lastRunsLimit)
	assert.Contains(t, rec.Body.String(), "succeeded")
}

func TestDisconnectStripePurgesDocuments(t *testing.T) {
	f := newTestServer(t)

	rec := doRequest(t, f.srv, http.MethodDelete, "/v1/organizations/1234/integrations/stripe", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.connSvc.disconnects)
	assert.ElementsMatch(t, stripesyncdomain.Collections, f.store.purged)
	assert.Contains(t, rec.Body.String(), `"purgedRecords":14`)
}
