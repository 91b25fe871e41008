package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/RubachokBoss/artwork-feedback/internal/models"
	"github.com/RubachokBoss/artwork-feedback/internal/repository"
	"github.com/RubachokBoss/artwork-feedback/internal/worker/queue"
)

type memorySubmissions struct {
	mu          sync.Mutex
	rows        map[string]models.Submission
	completeErr error
	writes      int
	reads       int
}

func newMemorySubmissions(rows ...models.Submission) *memorySubmissions {
	m := &memorySubmissions{rows: make(map[string]models.Submission)}
	for _, row := range rows {
		m.rows[row.ID] = row
	}
	return m
}

func (m *memorySubmissions) Create(_ context.Context, s *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.rows[s.ID] = *s
	return nil
}

func (m *memorySubmissions) GetByID(_ context.Context, id string) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memorySubmissions) UpdateAssetURL(_ context.Context, id, assetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	row, ok := m.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	row.AssetURL = assetURL
	m.rows[id] = row
	return nil
}

func (m *memorySubmissions) Complete(_ context.Context, id string, result models.SubmissionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.completeErr != nil {
		return m.completeErr
	}
	row, ok := m.rows[id]
	if !ok || row.Status == models.SubmissionStatusFailed {
		return repository.ErrNotFound
	}
	grade := result.Grade
	overall := result.OverallFeedback
	completedAt := result.CompletedAt
	row.Status = models.SubmissionStatusCompleted
	row.Grade = &grade
	row.PlagiarismScore = result.PlagiarismScore
	row.SimilarSources = result.SimilarSources
	row.Feedback = result.Feedback
	row.Summary = result.Summary
	row.OverallFeedback = &overall
	row.CompletedAt = &completedAt
	m.rows[id] = row
	return nil
}

func (m *memorySubmissions) MarkFailed(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	row, ok := m.rows[id]
	if !ok || row.Status == models.SubmissionStatusCompleted {
		return repository.ErrNotFound
	}
	row.Status = models.SubmissionStatusFailed
	row.FailureReason = &reason
	m.rows[id] = row
	return nil
}

func (m *memorySubmissions) Reopen(_ context.Context, id, reasonPrefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	row, ok := m.rows[id]
	if !ok || row.Status != models.SubmissionStatusFailed ||
		row.FailureReason == nil || !strings.HasPrefix(*row.FailureReason, reasonPrefix) {
		return repository.ErrNotFound
	}
	row.Status = models.SubmissionStatusPending
	row.FailureReason = nil
	m.rows[id] = row
	return nil
}

func (m *memorySubmissions) get(id string) models.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

func (m *memorySubmissions) counts() (reads, writes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads, m.writes
}

type memorySettings map[string]string

func (s memorySettings) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}

type flowStart struct {
	FlowID         string
	ContactID      string
	DefaultResults map[string]string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []flowStart
	err   error
}

func (n *fakeNotifier) StartFlow(_ context.Context, flowID, contactID string, defaultResults map[string]string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, flowStart{FlowID: flowID, ContactID: contactID, DefaultResults: defaultResults})
	if n.err != nil {
		return false, n.err
	}
	return true, nil
}

func (n *fakeNotifier) started() []flowStart {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]flowStart(nil), n.calls...)
}

type fakePublisher struct {
	mu          sync.Mutex
	deadLetters [][]byte
	err         error
}

func (p *fakePublisher) Publish(_ context.Context, _ string, _ []byte) error {
	return errors.New("not used")
}

func (p *fakePublisher) PublishDeadLetter(_ context.Context, _ string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.deadLetters = append(p.deadLetters, body)
	return nil
}

func (p *fakePublisher) published() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.deadLetters...)
}

type fakeConsumer struct {
	mu       sync.Mutex
	channels []chan queue.RabbitMQMessage
	consumed int
	closed   bool
}

func (c *fakeConsumer) Consume(ctx context.Context) (<-chan queue.RabbitMQMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consumed >= len(c.channels) {
		c.consumed++
		return nil, errors.New("broker unavailable")
	}
	ch := c.channels[c.consumed]
	c.consumed++
	return ch, nil
}

func (c *fakeConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConsumer) state() (consumed int, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumed, c.closed
}

type fakeStats struct{}

func (fakeStats) QueueStats(queue string) (models.QueueStats, error) {
	return models.QueueStats{Queue: queue, DeadLetterQueue: repository.DeadLetterQueue(queue), Messages: 2}, nil
}

// delivery records how a single message was settled.
type delivery struct {
	mu       sync.Mutex
	acks     int
	nacks    int
	rejects  int
	requeued bool
}

func (d *delivery) settled() (acks, nacks, rejects int, requeued bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acks, d.nacks, d.rejects, d.requeued
}

func newMessage(body string) (queue.RabbitMQMessage, *delivery) {
	d := &delivery{}
	return queue.RabbitMQMessage{
		Body:      []byte(body),
		Timestamp: time.Now(),
		Ack: func(bool) error {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.acks++
			return nil
		},
		Nack: func(_ bool, requeue bool) error {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.nacks++
			d.requeued = requeue
			return nil
		},
		Reject: func(requeue bool) error {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.rejects++
			d.requeued = requeue
			return nil
		},
	}, d
}
