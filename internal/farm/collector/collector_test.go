package collector

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"prooffarm/internal/common/storage"
	"prooffarm/internal/farm/model"
)

type fakeStatusRepo struct {
	mu      sync.Mutex
	records []model.JobStatusRecord
	err     error
}

func (f *fakeStatusRepo) Save(ctx context.Context, record model.JobStatusRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeStatusRepo) Get(ctx context.Context, jobID string) (model.JobStatusRecord, error) {
	return model.JobStatusRecord{}, fmt.Errorf("not implemented")
}

type fakeStore struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeStore) DownloadToFile(ctx context.Context, bucket, key, localPath string) error {
	return fmt.Errorf("not implemented")
}

func (f *fakeStore) PutObject(ctx context.Context, bucket, key string, reader io.Reader, sizeBytes int64, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeStore) StatObject(ctx context.Context, bucket, key string) (storage.ObjectStat, error) {
	return storage.ObjectStat{}, fmt.Errorf("not implemented")
}

func (f *fakeStore) RemoveObject(ctx context.Context, bucket, key string) error {
	return fmt.Errorf("not implemented")
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *fakePublisher) PublishResult(ctx context.Context, result model.JobResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, result.JobID)
	return nil
}

func runCollector(t *testing.T, c *Collector, results ...model.JobResult) {
	t.Helper()
	ch := make(chan model.JobResult, len(results))
	for _, r := range results {
		ch <- r
	}
	close(ch)

	done := make(chan struct{})
	go func() {
		c.Run(context.Background(), ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("collector did not drain the channel")
	}
}

func successResult(jobID string) model.JobResult {
	return model.JobResult{
		JobID:      jobID,
		Success:    true,
		DurationMS: 100,
		Artifact: &model.ProofArtifact{
			ID:        "art-" + jobID,
			TheoremID: "thm-1",
			Status:    model.ProofStatusSuccess,
			ProofCode: "by ring",
		},
		FinishedAt: time.Now(),
	}
}

func TestCollectCounters(t *testing.T) {
	c, err := New(Config{}, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	runCollector(t, c,
		successResult("a"),
		model.JobResult{JobID: "b", Success: false, DurationMS: 300, ErrorMessage: "build exited 1"},
		successResult("c"),
	)

	stats := c.Stats()
	if stats.Processed != 3 || stats.Succeeded != 2 || stats.Failed != 1 {
		t.Fatalf("unexpected counters: %+v", stats)
	}
	// (100 + 300 + 100) / 3
	if stats.AvgDurationMS != 166 {
		t.Fatalf("unexpected avg duration: %d", stats.AvgDurationMS)
	}
}

func TestCollectUploadsArtifactOnSuccessOnly(t *testing.T) {
	store := &fakeStore{}
	c, err := New(Config{ArtifactBucket: "proofs"}, nil, store, nil, nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	runCollector(t, c,
		successResult("ok"),
		model.JobResult{JobID: "bad", Success: false, ErrorMessage: "timeout"},
	)

	if len(store.keys) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(store.keys))
	}
	if store.keys[0] != "artifacts/art-ok.json.zst" {
		t.Fatalf("unexpected artifact key: %s", store.keys[0])
	}
}

func TestCollectSavesTerminalStatus(t *testing.T) {
	repo := &fakeStatusRepo{}
	c, err := New(Config{}, repo, nil, nil, nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	runCollector(t, c,
		successResult("ok"),
		model.JobResult{JobID: "bad", Success: false, ErrorMessage: "build exited 1"},
	)

	if len(repo.records) != 2 {
		t.Fatalf("expected 2 status records, got %d", len(repo.records))
	}
	byID := map[string]model.JobStatusRecord{}
	for _, r := range repo.records {
		byID[r.JobID] = r
	}
	if byID["ok"].Status != model.StatusFinished {
		t.Fatalf("expected finished status, got %s", byID["ok"].Status)
	}
	if byID["bad"].Status != model.StatusFailed || byID["bad"].ErrorMessage == "" {
		t.Fatalf("expected failed status with message, got %+v", byID["bad"])
	}
}

func TestCollectSurvivesSinkFailures(t *testing.T) {
	repo := &fakeStatusRepo{err: fmt.Errorf("redis down")}
	store := &fakeStore{err: fmt.Errorf("minio down")}
	pub := &fakePublisher{err: fmt.Errorf("kafka down")}
	c, err := New(Config{ArtifactBucket: "proofs"}, repo, store, nil, pub)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}

	runCollector(t, c, successResult("a"), successResult("b"))

	stats := c.Stats()
	if stats.Processed != 2 || stats.Succeeded != 2 {
		t.Fatalf("collector must keep counting through sink failures: %+v", stats)
	}
}

func TestCollectPublishesEvents(t *testing.T) {
	pub := &fakePublisher{}
	c, err := New(Config{}, nil, nil, nil, pub)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	runCollector(t, c, successResult("a"),
		model.JobResult{JobID: "b", Success: false})

	if len(pub.published) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.published))
	}
}
