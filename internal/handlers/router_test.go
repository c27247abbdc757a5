package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/datalake/internal/app"
	"github.com/xelth-com/datalake/internal/config"
	"github.com/xelth-com/datalake/internal/metrics"
	"github.com/xelth-com/datalake/internal/models"
	"github.com/xelth-com/datalake/internal/reader"
	datasync "github.com/xelth-com/datalake/internal/sync"
	"github.com/xelth-com/datalake/internal/testutil"
	"gorm.io/gorm"
)

const (
	testOrg  = "org-1"
	testConn = "conn-1"
)

type fixture struct {
	router *Router
	db     *gorm.DB
	orch   *datasync.Orchestrator
	stub   *testutil.StubConnector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	logger, _ := test.NewNullLogger()

	syncCfg := testutil.SyncConfig()

	reg := prometheus.NewRegistry()
	stub := testutil.NewStubConnector()
	orch, err := app.BuildOrchestrator(db, config.ConnectionConfig{
		OrganizationID: testOrg,
		ConnectionID:   testConn,
		Type:           "stub",
	}, stub, app.OrchestratorDeps{Sync: syncCfg, Metrics: metrics.New(reg), Logger: logger})
	require.NoError(t, err)
	_, err = orch.Prepare(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { <-orch.Stop().Done() })

	manager := datasync.NewManager()
	require.NoError(t, manager.Add(orch))

	rd, err := reader.New(db, syncCfg)
	require.NoError(t, err)

	return &fixture{
		router: NewRouter(Options{DB: db, Manager: manager, Reader: rd, Gatherer: reg, Logger: logger}),
		db:     db,
		orch:   orch,
		stub:   stub,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const base = "/api/datalake/connections/" + testConn

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = f.do(t, "GET", "/api/datalake/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode(t, rec)
	conns := status["connections"].([]interface{})
	require.Len(t, conns, 1)
	assert.Equal(t, testConn, conns[0].(map[string]interface{})["connectionId"])
	assert.Equal(t, "stub", conns[0].(map[string]interface{})["connector"])
}

func TestUnknownConnection(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "GET", "/api/datalake/connections/nope/stats", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerSyncWaitReturnsResult(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", base+"/sync/periodic?wait=true", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode(t, rec)
	assert.Equal(t, "periodic", res["tier"])
	assert.Len(t, res["entities"], 3)

	rec = f.do(t, "GET", base+"/carriers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	carriers := decode(t, rec)
	assert.Equal(t, float64(1), carriers["total"])

	rec = f.do(t, "POST", base+"/sync/weekly", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerSyncAsyncConflictsWhileBusy(t *testing.T) {
	f := newFixture(t)
	f.stub.Block = make(chan struct{})
	f.stub.Entered = make(chan struct{}, 1)

	rec := f.do(t, "POST", base+"/sync/transports", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	<-f.stub.Entered

	rec = f.do(t, "POST", base+"/sync/transports", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(f.stub.Block)
	require.Eventually(t, func() bool { return !f.orch.IsTierRunning(datasync.TierTransports) }, 2*time.Second, 10*time.Millisecond)

	rec = f.do(t, "GET", base+"/transports/T-001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t-1", decode(t, rec)["externalId"])
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.do(t, "POST", base+"/pause", `{"reason":"maintenance"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.orch.IsPaused())

	stats, err := f.orch.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "maintenance", stats.PausedReason)

	rec = f.do(t, "POST", base+"/resume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.orch.IsPaused())

	rec = f.do(t, "POST", base+"/pause", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransportReads(t *testing.T) {
	f := newFixture(t)
	rows := []models.Transport{
		{MirrorMeta: models.MirrorMeta{ExternalID: "a", ConnectionID: testConn, OrganizationID: testOrg, SyncedAt: time.Now()}, SequentialID: "T-1", Status: models.TransportDraft},
		{MirrorMeta: models.MirrorMeta{ExternalID: "b", ConnectionID: testConn, OrganizationID: testOrg, SyncedAt: time.Now()}, SequentialID: "T-2", Status: models.TransportCompleted, CarrierExternalID: "c-1", CarrierName: "Rapid"},
	}
	require.NoError(t, f.db.Create(&rows).Error)

	rec := f.do(t, "GET", base+"/transports?status=draft,pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode(t, rec)
	assert.Equal(t, float64(1), res["total"])

	rec = f.do(t, "GET", base+"/transports?sort=nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "GET", base+"/transports/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["total"])

	rec = f.do(t, "GET", base+"/transports/to-plan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["total"])

	rec = f.do(t, "GET", base+"/transports/search?q=rapid", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var found []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	assert.Len(t, found, 1)

	rec = f.do(t, "GET", base+"/transports/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFreshnessCoversEveryCollection(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "GET", base+"/freshness", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec), len(datasync.EntityKinds))
}

func TestCarriersNearValidatesCoordinates(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "GET", base+"/carriers/near?lat=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "GET", base+"/carriers/near?lat=48.85&lng=2.35", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, "POST", base+"/sync/periodic?wait=true", "")

	rec := f.do(t, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "datalake_sync_runs_total")
}
