package queue

import (
	"fmt"
	"testing"
	"time"

	"prooffarm/internal/farm/model"
	appErr "prooffarm/pkg/errors"
)

func makeJob(id string, priority model.JobPriority) model.Job {
	return model.Job{
		ID:        id,
		Theorem:   model.Theorem{ID: "thm-" + id, Name: id},
		Priority:  priority,
		CreatedAt: time.Now(),
	}
}

func TestDequeueHighestPriorityFirst(t *testing.T) {
	q := New(10)
	if err := q.Enqueue(makeJob("a", model.PriorityLow)); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	if err := q.Enqueue(makeJob("b", model.PriorityCritical)); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}
	if err := q.Enqueue(makeJob("c", model.PriorityNormal)); err != nil {
		t.Fatalf("enqueue c: %v", err)
	}

	job, ok := q.Dequeue()
	if !ok {
		t.Fatal("expected a job")
	}
	if job.ID != "b" {
		t.Fatalf("expected critical job b first, got %s", job.ID)
	}
	job, _ = q.Dequeue()
	if job.ID != "c" {
		t.Fatalf("expected normal job c second, got %s", job.ID)
	}
	job, _ = q.Dequeue()
	if job.ID != "a" {
		t.Fatalf("expected low job a last, got %s", job.ID)
	}
}

func TestDequeueFIFOWithinPriority(t *testing.T) {
	q := New(10)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("job-%d", i)
		if err := q.Enqueue(makeJob(id, model.PriorityNormal)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	for i := 0; i < 5; i++ {
		job, ok := q.Dequeue()
		if !ok {
			t.Fatalf("expected job %d", i)
		}
		want := fmt.Sprintf("job-%d", i)
		if job.ID != want {
			t.Fatalf("expected %s, got %s", want, job.ID)
		}
	}
}

func TestFIFOSurvivesInterleavedPriorities(t *testing.T) {
	q := New(10)
	_ = q.Enqueue(makeJob("low-1", model.PriorityLow))
	_ = q.Enqueue(makeJob("high-1", model.PriorityHigh))
	_ = q.Enqueue(makeJob("low-2", model.PriorityLow))
	_ = q.Enqueue(makeJob("high-2", model.PriorityHigh))

	want := []string{"high-1", "high-2", "low-1", "low-2"}
	for _, id := range want {
		job, ok := q.Dequeue()
		if !ok {
			t.Fatalf("expected job %s", id)
		}
		if job.ID != id {
			t.Fatalf("expected %s, got %s", id, job.ID)
		}
	}
}

func TestEnqueueQueueFull(t *testing.T) {
	q := New(2)
	if err := q.Enqueue(makeJob("a", model.PriorityNormal)); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	if err := q.Enqueue(makeJob("b", model.PriorityNormal)); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}
	if q.Size() != 2 {
		t.Fatalf("expected size 2, got %d", q.Size())
	}

	err := q.Enqueue(makeJob("c", model.PriorityCritical))
	if err == nil {
		t.Fatal("expected queue full error")
	}
	if !appErr.Is(err, appErr.QueueFull) {
		t.Fatalf("expected QueueFull code, got %v", appErr.GetCode(err))
	}
	if q.Size() != 2 {
		t.Fatalf("queue size changed on failed enqueue: %d", q.Size())
	}
}

func TestDequeueEmpty(t *testing.T) {
	q := New(4)
	if _, ok := q.Dequeue(); ok {
		t.Fatal("expected no job from empty queue")
	}
	if !q.IsEmpty() {
		t.Fatal("expected empty queue")
	}
}

func TestEnqueueRejectsMissingID(t *testing.T) {
	q := New(4)
	err := q.Enqueue(model.Job{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if q.Size() != 0 {
		t.Fatalf("expected empty queue, got size %d", q.Size())
	}
}
