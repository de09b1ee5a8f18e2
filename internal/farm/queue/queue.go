// Package queue implements the in-memory priority job queue.
//
// The queue is single-process and not durable across restarts. Ordering
// contract: Dequeue returns the highest-priority pending job; among
// equal priorities, first-in-first-out via a monotonic insertion
// sequence.
package queue

import (
	"container/heap"
	"sync"

	"prooffarm/internal/farm/model"
	appErr "prooffarm/pkg/errors"
)

// JobQueue is a capacity-bounded priority queue of pending jobs.
// All state is guarded by a single mutex; Enqueue and Dequeue are the
// only critical sections.
type JobQueue struct {
	mu      sync.Mutex
	items   jobHeap
	maxSize int
	nextSeq uint64
}

// New creates a queue holding at most maxSize jobs.
func New(maxSize int) *JobQueue {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &JobQueue{
		items:   make(jobHeap, 0, maxSize),
		maxSize: maxSize,
	}
}

// Enqueue inserts a job. It returns a QueueFull error when the queue is
// at capacity; the queue is left unchanged in that case.
func (q *JobQueue) Enqueue(job model.Job) error {
	if job.ID == "" {
		return appErr.ValidationError("job_id", "required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.maxSize {
		return appErr.New(appErr.QueueFull).WithDetail("max_size", q.maxSize)
	}
	heap.Push(&q.items, queuedJob{job: job, seq: q.nextSeq})
	q.nextSeq++
	return nil
}

// Dequeue removes and returns the job that should run next, or false
// when the queue is empty. Pop is exclusive: a dequeued job is owned by
// the caller.
func (q *JobQueue) Dequeue() (model.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return model.Job{}, false
	}
	item := heap.Pop(&q.items).(queuedJob)
	return item.job, true
}

// Size returns the number of pending jobs.
func (q *JobQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty reports whether no jobs are pending.
func (q *JobQueue) IsEmpty() bool {
	return q.Size() == 0
}

type queuedJob struct {
	job model.Job
	seq uint64
}

// jobHeap is a max-heap on (priority, -seq): higher priority first,
// lower sequence (earlier insertion) first within a priority.
type jobHeap []queuedJob

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x interface{}) {
	*h = append(*h, x.(queuedJob))
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
