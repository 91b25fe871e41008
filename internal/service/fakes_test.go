package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/RubachokBoss/artwork-feedback/internal/models"
	"github.com/RubachokBoss/artwork-feedback/internal/repository"
	"github.com/RubachokBoss/artwork-feedback/internal/service/integration"
)

type memorySubmissions struct {
	mu          sync.Mutex
	rows        map[string]models.Submission
	createErr   error
	completeErr error
	completed   []models.SubmissionResult
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
	if m.createErr != nil {
		return m.createErr
	}
	m.rows[s.ID] = *s
	return nil
}

func (m *memorySubmissions) GetByID(_ context.Context, id string) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memorySubmissions) UpdateAssetURL(_ context.Context, id, assetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	if m.completeErr != nil {
		return m.completeErr
	}
	row, ok := m.rows[id]
	if !ok || row.Status == models.SubmissionStatusFailed {
		return repository.ErrNotFound
	}
	m.completed = append(m.completed, result)
	overall := result.OverallFeedback
	completedAt := result.CompletedAt
	row.Status = models.SubmissionStatusCompleted
	row.OverallFeedback = &overall
	row.CompletedAt = &completedAt
	m.rows[id] = row
	return nil
}

func (m *memorySubmissions) MarkFailed(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *memorySubmissions) get(id string) (models.Submission, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	return row, ok
}

type stubFetcher struct {
	asset *integration.Asset
	err   error
	urls  []string
}

func (f *stubFetcher) Fetch(_ context.Context, assetURL string) (*integration.Asset, error) {
	f.urls = append(f.urls, assetURL)
	if f.err != nil {
		return nil, f.err
	}
	return f.asset, nil
}

type memoryStorage struct {
	objects map[string][]byte
	types   map[string]string
	sums    map[string]string
	err     error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
		sums:    make(map[string]string),
	}
}

func (s *memoryStorage) Put(_ context.Context, key string, body io.Reader, size int64, contentType, checksum string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if int64(len(data)) != size {
		return "", errors.New("size mismatch")
	}
	s.objects[key] = data
	s.types[key] = contentType
	s.sums[key] = checksum
	return s.URL(key), nil
}

func (s *memoryStorage) URL(key string) string {
	return "http://minio:9000/artwork/" + key
}

type recordingJobs struct {
	jobs []models.JobMessage
	err  error
}

func (p *recordingJobs) PublishJob(_ context.Context, job *models.JobMessage) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, *job)
	return nil
}

type stubStats map[string]models.QueueStats

func (s stubStats) QueueStats(queue string) (models.QueueStats, error) {
	stats, ok := s[queue]
	if !ok {
		return models.QueueStats{}, errors.New("queue not found")
	}
	return stats, nil
}

type memorySettings map[string]string

func (s memorySettings) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}

type recordingNotifier struct {
	flowID   string
	contact  string
	defaults map[string]string
	calls    int
	started  bool
	err      error
}

func (n *recordingNotifier) StartFlow(_ context.Context, flowID, contactID string, defaultResults map[string]string) (bool, error) {
	n.calls++
	n.flowID = flowID
	n.contact = contactID
	n.defaults = defaultResults
	return n.started, n.err
}
