package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/RubachokBoss/artwork-feedback/internal/models"
	"github.com/RubachokBoss/artwork-feedback/internal/repository"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFeedbackFixture(rows ...models.Submission) (*feedbackService, *memorySubmissions, memorySettings, *recordingNotifier) {
	repo := newMemorySubmissions(rows...)
	settings := memorySettings{"feedback_flow_id": "flow-1"}
	notifier := &recordingNotifier{started: true}

	svc := NewFeedbackService(repo, settings, notifier, "feedback_flow_id", zerolog.Nop()).(*feedbackService)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	return svc, repo, settings, notifier
}

func parseResult(t *testing.T, body string) *models.ResultMessage {
	t.Helper()
	msg, err := models.ParseResultMessage([]byte(body))
	require.NoError(t, err)
	return msg
}

func TestFeedbackApply(t *testing.T) {
	svc, repo, _, _ := newFeedbackFixture(models.Submission{ID: "SUB-1", StudentID: "S1", Status: models.SubmissionStatusPending})

	msg := parseResult(t, `{
		"submission_id": "SUB-1",
		"student_id": "S1",
		"grade_recommendation": "90",
		"plagiarism_score": 0.12,
		"similar_sources": ["https://example.org/a.jpg"],
		"feedback": {"overall_feedback": "Great composition", "color": "warm"},
		"summary": "Strong piece"
	}`)

	submission, err := svc.Apply(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, models.SubmissionStatusCompleted, submission.Status)
	require.NotNil(t, submission.Grade)
	assert.Equal(t, 90.0, *submission.Grade)
	require.NotNil(t, submission.CompletedAt)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), *submission.CompletedAt)

	require.Len(t, repo.completed, 1)
	result := repo.completed[0]
	assert.Equal(t, 90.0, result.Grade)
	require.NotNil(t, result.PlagiarismScore)
	assert.Equal(t, 0.12, *result.PlagiarismScore)
	assert.JSONEq(t, `["https://example.org/a.jpg"]`, string(result.SimilarSources))
	assert.JSONEq(t, `{"overall_feedback": "Great composition", "color": "warm"}`, string(result.Feedback))
	require.NotNil(t, result.Summary)
	assert.Equal(t, "Strong piece", *result.Summary)
	assert.Equal(t, "Great composition", result.OverallFeedback)
}

func TestFeedbackApplyGuards(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		svc, _, _, _ := newFeedbackFixture()
		_, err := svc.Apply(context.Background(), parseResult(t, `{"submission_id":"SUB-1","student_id":"S1"}`))
		assert.ErrorIs(t, err, ErrSubmissionNotFound)
		assert.False(t, IsRetryable(err))
	})

	t.Run("failed is terminal", func(t *testing.T) {
		svc, repo, _, _ := newFeedbackFixture(models.Submission{ID: "SUB-1", StudentID: "S1", Status: models.SubmissionStatusFailed})
		_, err := svc.Apply(context.Background(), parseResult(t, `{"submission_id":"SUB-1","student_id":"S1"}`))
		assert.ErrorIs(t, err, ErrSubmissionTerminal)
		assert.Empty(t, repo.completed)
	})

	t.Run("missing student", func(t *testing.T) {
		svc, repo, _, _ := newFeedbackFixture(models.Submission{ID: "SUB-1", Status: models.SubmissionStatusPending})
		_, err := svc.Apply(context.Background(), parseResult(t, `{"submission_id":"SUB-1"}`))
		assert.ErrorIs(t, err, ErrMissingStudent)
		assert.Empty(t, repo.completed)
	})

	t.Run("missing id", func(t *testing.T) {
		svc, _, _, _ := newFeedbackFixture()
		_, err := svc.Apply(context.Background(), &models.ResultMessage{})
		assert.ErrorIs(t, err, ErrMissingSubmissionID)
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		svc, repo, _, _ := newFeedbackFixture(models.Submission{ID: "SUB-1", StudentID: "S1", Status: models.SubmissionStatusPending})
		storeErr := errors.New("connection reset by peer")
		repo.completeErr = storeErr

		_, err := svc.Apply(context.Background(), parseResult(t, `{"submission_id":"SUB-1"}`))
		assert.ErrorIs(t, err, storeErr)
		assert.True(t, IsRetryable(err))
	})
}

func TestFeedbackNotify(t *testing.T) {
	svc, _, _, notifier := newFeedbackFixture()
	submission := &models.Submission{ID: "SUB-1", StudentID: "S1"}

	err := svc.Notify(context.Background(), submission, parseResult(t, `{"submission_id":"SUB-1","feedback":"Nice lines"}`))
	require.NoError(t, err)

	assert.Equal(t, 1, notifier.calls)
	assert.Equal(t, "flow-1", notifier.flowID)
	assert.Equal(t, "S1", notifier.contact)
	assert.Equal(t, map[string]string{"submission_id": "SUB-1", "feedback": "Nice lines"}, notifier.defaults)
}

func TestFeedbackNotifyFailures(t *testing.T) {
	submission := &models.Submission{ID: "SUB-1", StudentID: "S1"}
	msg := &models.ResultMessage{SubmissionID: "SUB-1", Feedback: json.RawMessage(`{}`)}

	t.Run("flow not configured", func(t *testing.T) {
		svc, _, settings, notifier := newFeedbackFixture()
		delete(settings, "feedback_flow_id")

		err := svc.Notify(context.Background(), submission, msg)
		assert.ErrorIs(t, err, ErrFlowNotConfigured)
		assert.Zero(t, notifier.calls)
	})

	t.Run("gateway error", func(t *testing.T) {
		svc, _, _, notifier := newFeedbackFixture()
		notifier.started = false
		notifier.err = errors.New("status 500")

		err := svc.Notify(context.Background(), submission, msg)
		assert.ErrorIs(t, err, ErrNotification)
	})

	t.Run("flow not started", func(t *testing.T) {
		svc, _, _, notifier := newFeedbackFixture()
		notifier.started = false

		err := svc.Notify(context.Background(), submission, msg)
		assert.ErrorIs(t, err, ErrNotification)
	})
}

func TestFeedbackMarkFailed(t *testing.T) {
	svc, repo, _, _ := newFeedbackFixture(
		models.Submission{ID: "SUB-1", Status: models.SubmissionStatusPending},
		models.Submission{ID: "SUB-2", Status: models.SubmissionStatusCompleted},
	)

	require.NoError(t, svc.MarkFailed(context.Background(), "SUB-1", "validation failed"))
	row, _ := repo.get("SUB-1")
	assert.Equal(t, models.SubmissionStatusFailed, row.Status)

	err := svc.MarkFailed(context.Background(), "SUB-2", "late failure")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	row, _ = repo.get("SUB-2")
	assert.Equal(t, models.SubmissionStatusCompleted, row.Status)
}

func TestFeedbackApplyKeepsCompletedAt(t *testing.T) {
	svc, repo, _, _ := newFeedbackFixture(models.Submission{ID: "SUB-1", StudentID: "S1", Status: models.SubmissionStatusPending})
	body := `{"submission_id":"SUB-1","student_id":"S1","grade_recommendation":"90"}`

	first, err := svc.Apply(context.Background(), parseResult(t, body))
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC) }
	second, err := svc.Apply(context.Background(), parseResult(t, body))
	require.NoError(t, err)

	require.NotNil(t, second.CompletedAt)
	assert.Equal(t, *first.CompletedAt, *second.CompletedAt)
	require.Len(t, repo.completed, 2)
	assert.Equal(t, repo.completed[0], repo.completed[1])
}

func TestFeedbackPrepareReplay(t *testing.T) {
	exhausted := RetriesExhaustedReason + ": i/o timeout"
	invalid := "invalid data: grade out of range"

	svc, repo, _, _ := newFeedbackFixture(
		models.Submission{ID: "SUB-1", StudentID: "S1", Status: models.SubmissionStatusFailed, FailureReason: &exhausted},
		models.Submission{ID: "SUB-2", StudentID: "S2", Status: models.SubmissionStatusFailed, FailureReason: &invalid},
		models.Submission{ID: "SUB-3", StudentID: "S3", Status: models.SubmissionStatusCompleted},
	)
	ctx := context.Background()

	require.NoError(t, svc.PrepareReplay(ctx, []byte(`{"submission_id":"SUB-1"}`)))
	row, _ := repo.get("SUB-1")
	assert.Equal(t, models.SubmissionStatusPending, row.Status)
	assert.Nil(t, row.FailureReason)

	require.NoError(t, svc.PrepareReplay(ctx, []byte(`{"submission_id":"SUB-2"}`)))
	row, _ = repo.get("SUB-2")
	assert.Equal(t, models.SubmissionStatusFailed, row.Status)

	require.NoError(t, svc.PrepareReplay(ctx, []byte(`{"submission_id":"SUB-3"}`)))
	row, _ = repo.get("SUB-3")
	assert.Equal(t, models.SubmissionStatusCompleted, row.Status)

	assert.NoError(t, svc.PrepareReplay(ctx, []byte(`{"submission_id":"SUB-404"}`)))
	assert.NoError(t, svc.PrepareReplay(ctx, []byte(`not json`)))
}
