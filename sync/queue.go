package sync

import (
	"log/slog"
	gosync "sync"
)

// ImportJob copies one local file into the store.
type ImportJob struct {
	FSPath    string
	StorePath string
	// Overwrite replaces an existing store file instead of failing.
	Overwrite bool
}

// ImportQueue is a thread-safe FIFO of import jobs, deduplicated by store
// path. A job pushed while an older one for the same path is queued
// replaces it in place.
type ImportQueue struct {
	mu     gosync.Mutex
	jobs   map[string]ImportJob
	order  []string
	notify chan struct{}
}

// NewImportQueue creates an empty queue.
func NewImportQueue() *ImportQueue {
	return &ImportQueue{
		jobs:   make(map[string]ImportJob),
		notify: make(chan struct{}, 1),
	}
}

// Push queues a job.
func (q *ImportQueue) Push(job ImportJob) {
	q.PushMany([]ImportJob{job})
}

// PushMany queues several jobs.
func (q *ImportQueue) PushMany(jobs []ImportJob) {
	q.mu.Lock()
	added := 0
	for _, job := range jobs {
		if _, exists := q.jobs[job.StorePath]; !exists {
			q.order = append(q.order, job.StorePath)
			added++
		}
		q.jobs[job.StorePath] = job
	}
	newLen := len(q.order)
	q.mu.Unlock()

	if logEnabled(slog.LevelDebug) {
		sub("queue").Debug("push", "requested", len(jobs), "added", added, "queueLen", newLen)
	}
	if added > 0 {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
}

// Pop removes and returns the next job. It blocks until one is available
// or done is closed, in which case ok is false.
func (q *ImportQueue) Pop(done <-chan struct{}) (ImportJob, bool) {
	for {
		q.mu.Lock()
		if len(q.order) > 0 {
			path := q.order[0]
			q.order = q.order[1:]
			job := q.jobs[path]
			delete(q.jobs, path)
			remaining := len(q.order)
			q.mu.Unlock()
			if logEnabled(slog.LevelDebug) {
				sub("queue").Debug("pop", "storePath", path, "queueLen", remaining)
			}
			if remaining > 0 {
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return job, true
		}
		q.mu.Unlock()

		select {
		case <-done:
			return ImportJob{}, false
		case <-q.notify:
		}
	}
}

// Has reports whether a job for storePath is queued.
func (q *ImportQueue) Has(storePath string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.jobs[storePath]
	return ok
}

// Len returns the number of queued jobs.
func (q *ImportQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Drain removes and returns every queued job in order.
func (q *ImportQueue) Drain() []ImportJob {
	q.mu.Lock()
	out := make([]ImportJob, 0, len(q.order))
	for _, p := range q.order {
		out = append(out, q.jobs[p])
	}
	q.order = nil
	q.jobs = make(map[string]ImportJob)
	q.mu.Unlock()
	sub("queue").Debug("drain", "count", len(out))
	return out
}
