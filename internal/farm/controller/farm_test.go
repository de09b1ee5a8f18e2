package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"prooffarm/internal/farm/model"
	"prooffarm/internal/farm/pool"
	"prooffarm/internal/farm/queue"
	appErr "prooffarm/pkg/errors"
	"prooffarm/pkg/utils/response"
)

type nopExecutor struct{}

func (nopExecutor) Execute(ctx context.Context, job model.Job) (*model.ProofArtifact, error) {
	return &model.ProofArtifact{ID: "art-" + job.ID}, nil
}

type fakeStatusRepo struct {
	records map[string]model.JobStatusRecord
}

func (f *fakeStatusRepo) Save(ctx context.Context, record model.JobStatusRecord) error {
	f.records[record.JobID] = record
	return nil
}

func (f *fakeStatusRepo) Get(ctx context.Context, jobID string) (model.JobStatusRecord, error) {
	record, ok := f.records[jobID]
	if !ok {
		return model.JobStatusRecord{}, appErr.Newf(appErr.JobNotFound, "job %s not found", jobID)
	}
	return record, nil
}

type fakeResultStore struct {
	results map[string]model.JobResult
}

func (f *fakeResultStore) Save(ctx context.Context, result model.JobResult) error {
	f.results[result.JobID] = result
	return nil
}

func (f *fakeResultStore) Get(ctx context.Context, jobID string) (model.JobResult, error) {
	result, ok := f.results[jobID]
	if !ok {
		return model.JobResult{}, appErr.Newf(appErr.RecordNotFound, "no result for job %s", jobID)
	}
	return result, nil
}

func newTestRouter(t *testing.T, startPool bool) (*gin.Engine, *fakeStatusRepo, *fakeResultStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	p, err := pool.New(queue.New(10), nopExecutor{}, pool.Config{Workers: 1})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	if startPool {
		if err := p.Start(context.Background()); err != nil {
			t.Fatalf("start pool: %v", err)
		}
		t.Cleanup(p.Stop)
	}

	status := &fakeStatusRepo{records: map[string]model.JobStatusRecord{}}
	results := &fakeResultStore{results: map[string]model.JobResult{}}

	r := gin.New()
	NewFarmController(p, nil, status, results).RegisterRoutes(r)
	return r, status, results
}

func doRequest(t *testing.T, r *gin.Engine, path string) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)

	var body response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
	return w, body
}

func TestHealthAlwaysOK(t *testing.T) {
	r, _, _ := newTestRouter(t, false)
	w, body := doRequest(t, r, "/healthz")
	if w.Code != http.StatusOK || body.Code != appErr.Success {
		t.Fatalf("unexpected health response: %d %+v", w.Code, body)
	}
}

func TestReadyReflectsPoolState(t *testing.T) {
	r, _, _ := newTestRouter(t, false)
	w, body := doRequest(t, r, "/readyz")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before pool start, got %d", w.Code)
	}
	if body.Code != appErr.PoolNotRunning {
		t.Fatalf("unexpected code: %d", body.Code)
	}

	r, _, _ = newTestRouter(t, true)
	w, _ = doRequest(t, r, "/readyz")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after pool start, got %d", w.Code)
	}
}

func TestStatusReportsPoolGauges(t *testing.T) {
	r, _, _ := newTestRouter(t, true)
	w, body := doRequest(t, r, "/api/v1/farm/status")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	data, err := json.Marshal(body.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var status statusResponse
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected running pool")
	}
}

func TestResultLookup(t *testing.T) {
	r, status, results := newTestRouter(t, false)

	status.records["job-1"] = model.JobStatusRecord{
		JobID:  "job-1",
		Status: model.StatusFinished,
	}
	results.results["job-1"] = model.JobResult{
		JobID:      "job-1",
		Success:    true,
		DurationMS: 42,
		FinishedAt: time.Now(),
	}

	w, body := doRequest(t, r, "/api/v1/farm/results/job-1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %+v", w.Code, body)
	}
	data, _ := json.Marshal(body.Data)
	var resp resultResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if resp.Status == nil || resp.Result == nil {
		t.Fatalf("expected both status and result, got %+v", resp)
	}
}

func TestResultNotFound(t *testing.T) {
	r, _, _ := newTestRouter(t, false)
	w, body := doRequest(t, r, "/api/v1/farm/results/ghost")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if body.Code != appErr.JobNotFound {
		t.Fatalf("unexpected code: %d", body.Code)
	}
}

func TestResultPartialStatusOnly(t *testing.T) {
	r, status, _ := newTestRouter(t, false)
	status.records["job-2"] = model.JobStatusRecord{
		JobID:  "job-2",
		Status: model.StatusRunning,
	}

	w, body := doRequest(t, r, "/api/v1/farm/results/job-2")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	data, _ := json.Marshal(body.Data)
	var resp resultResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if resp.Status == nil || resp.Result != nil {
		t.Fatalf("expected status only, got %+v", resp)
	}
}
