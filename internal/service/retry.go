package service

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// RetriesExhaustedReason prefixes the failure reason of a submission whose
// result was dead-lettered.
const RetriesExhaustedReason = "retries exhausted"

// RetryPolicy is a fixed backoff table: attempt n (1-based) waits Backoff[n-1]
// before the message is requeued. Attempts beyond the table are exhausted.
type RetryPolicy struct {
	Backoff []time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Backoff: []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second}}
}

func (p RetryPolicy) MaxRetries() int {
	return len(p.Backoff)
}

// Delay returns the wait before requeueing the given attempt, and false once
// the attempt is past the retry ceiling.
func (p RetryPolicy) Delay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > len(p.Backoff) {
		return 0, false
	}
	return p.Backoff[attempt-1], true
}

// RetryCounter counts consecutive failed attempts per submission id. It is
// bounded, so ids that stop failing eventually fall out.
type RetryCounter struct {
	mu    sync.Mutex
	cache *lru.Cache[string, int]
}

func NewRetryCounter(size int) (*RetryCounter, error) {
	if size <= 0 {
		size = 10000
	}
	cache, err := lru.New[string, int](size)
	if err != nil {
		return nil, err
	}
	return &RetryCounter{cache: cache}, nil
}

// Increment records one more failure and returns the attempt number.
func (c *RetryCounter) Increment(submissionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, _ := c.cache.Get(submissionID)
	n++
	c.cache.Add(submissionID, n)
	return n
}

func (c *RetryCounter) Get(submissionID string) int {
	n, _ := c.cache.Peek(submissionID)
	return n
}

func (c *RetryCounter) Reset(submissionID string) {
	c.cache.Remove(submissionID)
}

func (c *RetryCounter) Len() int {
	return c.cache.Len()
}
