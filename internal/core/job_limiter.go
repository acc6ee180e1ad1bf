package core

// job_limiter.go bounds how many import jobs run at once.
//
// Each dispatcher worker takes a slot before running the importer and gives it
// back when the job ends. A job that cannot get a slot within maxWait fails with
// ErrTooManyJobs instead of queueing forever.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyJobs is returned when every slot stays occupied for the whole wait.
var ErrTooManyJobs = errors.New("too many concurrent import jobs, please try again later")

// DefaultMaxConcurrentJobs is the default limit for parallel imports.
const DefaultMaxConcurrentJobs = 5

// DefaultMaxWaitTime is how long a job waits for a slot before giving up.
const DefaultMaxWaitTime = 5 * time.Minute

// JobLimiter is a counting semaphore over a buffered channel.
type JobLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewJobLimiter allows at most maxConcurrent holders. Non-positive arguments use the defaults.
func NewJobLimiter(maxConcurrent int, maxWait time.Duration) *JobLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentJobs
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &JobLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits up to maxWait for a slot.
// The caller must Release exactly once after a nil return.
func (l *JobLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-timer.C:
		return ErrTooManyJobs
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot taken by Acquire.
func (l *JobLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ActiveCount returns the number of held slots.
func (l *JobLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// JobLimiterStatus is a snapshot of the limiter.
type JobLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status reports slot usage for the jobs endpoint and shutdown logging.
func (l *JobLimiter) Status() JobLimiterStatus {
	active := l.ActiveCount()
	return JobLimiterStatus{
		Active:        active,
		Available:     cap(l.slots) - active,
		MaxConcurrent: cap(l.slots),
	}
}
