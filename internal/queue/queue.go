// Package queue provides the FIFO of pending scrape jobs shared by all workers.
package queue

import (
	"sync"

	"github.com/ryanm101/romscraper/internal/game"
)

// Queue is a mutex guarded FIFO. The lock is only held for the slice operation
// itself, never while a job is processed.
type Queue struct {
	mu   sync.Mutex
	jobs []*game.Job
	head int
}

// New creates a queue pre-filled with jobs.
func New(jobs ...*game.Job) *Queue {
	q := &Queue{}
	q.Push(jobs...)
	return q
}

// Push appends jobs to the tail of the queue.
func (q *Queue) Push(jobs ...*game.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, jobs...)
}

// Pop removes and returns the job at the head. ok is false when the queue is empty.
func (q *Queue) Pop() (job *game.Job, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.jobs) {
		return nil, false
	}
	job = q.jobs[q.head]
	q.jobs[q.head] = nil
	q.head++

	// Reclaim the consumed prefix once it dominates the backing array.
	if q.head > 64 && q.head*2 > len(q.jobs) {
		q.jobs = append([]*game.Job(nil), q.jobs[q.head:]...)
		q.head = 0
	}
	return job, true
}

// IsEmpty reports whether no jobs are left.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Len returns the number of jobs still waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs) - q.head
}
