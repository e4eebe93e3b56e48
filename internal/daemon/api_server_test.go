package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"clipwise/internal/api"
	"clipwise/internal/config"
	"clipwise/internal/logging"
	"clipwise/internal/stage"
	"clipwise/internal/storage"
	"clipwise/internal/store"
	"clipwise/internal/testsupport"
	"clipwise/internal/workflow"
)

type idleStage struct{}

func (idleStage) Prepare(context.Context, *store.Run) error { return nil }
func (idleStage) Execute(context.Context, *store.Run) error { return nil }
func (idleStage) HealthCheck(context.Context) stage.Health  { return stage.Healthy("idle") }

type apiFixture struct {
	cfg     *config.Config
	store   *store.Store
	objects storage.ObjectStore
	handler http.Handler
}

func newAPIFixture(t *testing.T, token string) *apiFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = token
	st := testsupport.MustOpenStore(t, cfg)
	objects, err := storage.NewFilesystem(cfg.Storage.Root)
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, st, logger)
	mgr.ConfigureStages(workflow.StageSet{Ingest: idleStage{}})
	d, err := New(cfg, st, objects, logger, mgr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &apiFixture{cfg: cfg, store: st, objects: objects, handler: d.api.routes()}
}

func (f *apiFixture) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestAPITriggerThenDescribeRun(t *testing.T) {
	f := newAPIFixture(t, "")

	w := f.do(t, http.MethodPost, "/api/runs", `{"campaign":"Nature","batchSize":4}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	triggered := decode[api.TriggerResponse](t, w)
	if triggered.ExecutionID == "" {
		t.Fatal("expected execution id")
	}

	w = f.do(t, http.MethodGet, "/api/runs/"+triggered.ExecutionID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	report := decode[api.RunReport](t, w)
	if report.Run.Campaign != "nature" || report.Run.Status != "pending" || report.Run.BatchSize != 4 {
		t.Fatalf("unexpected run: %+v", report.Run)
	}

	w = f.do(t, http.MethodGet, "/api/runs?limit=5", "")
	list := decode[api.RunListResponse](t, w)
	if len(list.Runs) != 1 || list.Runs[0].ID != triggered.ExecutionID {
		t.Fatalf("unexpected runs: %+v", list.Runs)
	}
}

func TestAPITriggerRejectsConfigErrors(t *testing.T) {
	f := newAPIFixture(t, "")
	cases := []string{
		`{"campaign":"","batchSize":4}`,
		`{"campaign":"nature","batchSize":0}`,
		`{"campaign":"../etc","batchSize":2}`,
	}
	for _, body := range cases {
		w := f.do(t, http.MethodPost, "/api/runs", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, w.Code)
		}
		resp := decode[api.ErrorResponse](t, w)
		if resp.Kind != "config" {
			t.Fatalf("%s: expected config kind, got %+v", body, resp)
		}
	}
	runs, err := f.store.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("rejected triggers persisted %d runs", len(runs))
	}

	w := f.do(t, http.MethodPost, "/api/runs", `{"campaign":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", w.Code)
	}
}

func TestAPIUnknownRunIsNotFound(t *testing.T) {
	f := newAPIFixture(t, "")
	w := f.do(t, http.MethodGet, "/api/runs/does-not-exist", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if resp := decode[api.ErrorResponse](t, w); resp.Kind != "not_found" {
		t.Fatalf("unexpected error payload: %+v", resp)
	}
}

func TestAPICampaignRoundTrip(t *testing.T) {
	f := newAPIFixture(t, "")

	w := f.do(t, http.MethodGet, "/api/campaign", "")
	initial := decode[api.CampaignState](t, w)
	if initial.Campaign != f.cfg.Campaign.Default {
		t.Fatalf("expected default campaign, got %+v", initial)
	}

	w = f.do(t, http.MethodPut, "/api/campaign", `{"campaign":" Travel ","batchSize":6}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/api/campaign", "")
	got := decode[api.CampaignState](t, w)
	if got.Campaign != "travel" || got.BatchSize != 6 || got.UpdatedAt == "" {
		t.Fatalf("unexpected campaign state: %+v", got)
	}

	w = f.do(t, http.MethodPut, "/api/campaign", `{"campaign":"","batchSize":6}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty campaign, got %d", w.Code)
	}
}

func TestAPIStorageListsKeysUnderPrefix(t *testing.T) {
	f := newAPIFixture(t, "")
	ctx := context.Background()
	for _, key := range []string{"raw/nature/a.mp4", "raw/tech/b.mp4", "processed/nature/a/labels.json"} {
		if err := f.objects.Put(ctx, key, []byte("x"), "application/octet-stream"); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}
	w := f.do(t, http.MethodGet, "/api/storage?prefix=raw/", "")
	resp := decode[api.ObjectListResponse](t, w)
	if len(resp.Keys) != 2 || resp.Keys[0] != "raw/nature/a.mp4" || resp.Keys[1] != "raw/tech/b.mp4" {
		t.Fatalf("unexpected keys: %+v", resp)
	}
}

func TestAPIAssetsValidatesLimit(t *testing.T) {
	f := newAPIFixture(t, "")
	if w := f.do(t, http.MethodGet, "/api/assets?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	w := f.do(t, http.MethodGet, "/api/assets?campaign=nature", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decode[api.AssetListResponse](t, w); resp.Assets == nil || len(resp.Assets) != 0 {
		t.Fatalf("expected empty asset list, got %+v", resp)
	}
}

func TestAPIStatusReportsStageHealth(t *testing.T) {
	f := newAPIFixture(t, "")
	w := f.do(t, http.MethodGet, "/api/status", "")
	status := decode[api.DaemonStatus](t, w)
	if status.Running {
		t.Fatal("daemon was never started")
	}
	if len(status.Workflow.StageHealth) != 1 || !status.Workflow.StageHealth[0].Ready {
		t.Fatalf("unexpected stage health: %+v", status.Workflow.StageHealth)
	}
	if status.Campaign.Campaign != f.cfg.Campaign.Default {
		t.Fatalf("unexpected campaign: %+v", status.Campaign)
	}
}

func TestAPIRequiresBearerTokenWhenConfigured(t *testing.T) {
	f := newAPIFixture(t, "s3cret")

	if w := f.do(t, http.MethodGet, "/api/status", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/status", "", "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/status", "", "Authorization", "Bearer s3cret"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
}
