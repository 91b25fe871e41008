package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RubachokBoss/artwork-feedback/internal/models"
	"github.com/RubachokBoss/artwork-feedback/internal/repository"
	"github.com/RubachokBoss/artwork-feedback/internal/service/integration"
	"github.com/rs/zerolog"
)

// FeedbackService applies grader results to submissions and notifies students.
type FeedbackService interface {
	// Apply writes the result and marks the submission completed. It returns
	// ErrSubmissionNotFound, ErrSubmissionTerminal or ErrMissingStudent before
	// touching the row.
	Apply(ctx context.Context, msg *models.ResultMessage) (*models.Submission, error)
	Notify(ctx context.Context, submission *models.Submission, msg *models.ResultMessage) error
	MarkFailed(ctx context.Context, id, reason string) error
	// PrepareReplay reopens the submission named in a dead-lettered body so
	// the replayed result can complete it. Bodies that cannot be parsed and
	// submissions that did not fail by exhausting retries are left alone.
	PrepareReplay(ctx context.Context, body []byte) error
}

type feedbackService struct {
	submissionRepo     repository.SubmissionRepository
	settingsRepo       repository.SettingsRepository
	notificationClient integration.NotificationClient
	flowKey            string
	now                func() time.Time
	logger             zerolog.Logger
}

func NewFeedbackService(
	submissionRepo repository.SubmissionRepository,
	settingsRepo repository.SettingsRepository,
	notificationClient integration.NotificationClient,
	flowKey string,
	logger zerolog.Logger,
) FeedbackService {
	return &feedbackService{
		submissionRepo:     submissionRepo,
		settingsRepo:       settingsRepo,
		notificationClient: notificationClient,
		flowKey:            flowKey,
		now:                time.Now,
		logger:             logger,
	}
}

func (s *feedbackService) Apply(ctx context.Context, msg *models.ResultMessage) (*models.Submission, error) {
	if msg.SubmissionID == "" {
		return nil, ErrMissingSubmissionID
	}

	submission, err := s.submissionRepo.GetByID(ctx, msg.SubmissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	if submission == nil {
		return nil, fmt.Errorf("%w: %s", ErrSubmissionNotFound, msg.SubmissionID)
	}
	if !submission.Status.CanTransitionTo(models.SubmissionStatusCompleted) {
		return submission, ErrSubmissionTerminal
	}
	if msg.StudentID == "" && submission.StudentID == "" {
		return submission, ErrMissingStudent
	}

	result := msg.Result()
	result.CompletedAt = s.now().UTC()
	if submission.Status == models.SubmissionStatusCompleted && submission.CompletedAt != nil {
		result.CompletedAt = *submission.CompletedAt
	}

	if err := s.submissionRepo.Complete(ctx, submission.ID, result); err != nil {
		return submission, fmt.Errorf("failed to complete submission: %w", err)
	}

	submission.Status = models.SubmissionStatusCompleted
	submission.Grade = &result.Grade
	submission.PlagiarismScore = result.PlagiarismScore
	submission.SimilarSources = result.SimilarSources
	submission.Feedback = result.Feedback
	submission.Summary = result.Summary
	submission.OverallFeedback = &result.OverallFeedback
	submission.CompletedAt = &result.CompletedAt

	s.logger.Info().
		Str("submission_id", submission.ID).
		Float64("grade", result.Grade).
		Bool("grade_parsed", msg.GradeParsed).
		Msg("Submission completed")

	return submission, nil
}

func (s *feedbackService) Notify(ctx context.Context, submission *models.Submission, msg *models.ResultMessage) error {
	studentID := msg.StudentID
	if studentID == "" {
		studentID = submission.StudentID
	}

	flowID, ok, err := s.settingsRepo.Get(ctx, s.flowKey)
	if err != nil {
		return fmt.Errorf("%w: failed to resolve flow: %v", ErrNotification, err)
	}
	if !ok || flowID == "" {
		return fmt.Errorf("%w: %s", ErrFlowNotConfigured, s.flowKey)
	}

	overall := msg.OverallFeedback
	if overall == "" && submission.OverallFeedback != nil {
		overall = *submission.OverallFeedback
	}

	started, err := s.notificationClient.StartFlow(ctx, flowID, studentID, map[string]string{
		"submission_id": submission.ID,
		"feedback":      overall,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotification, err)
	}
	if !started {
		return fmt.Errorf("%w: flow %s was not started", ErrNotification, flowID)
	}

	return nil
}

func (s *feedbackService) MarkFailed(ctx context.Context, id, reason string) error {
	if err := s.submissionRepo.MarkFailed(ctx, id, reason); err != nil {
		return fmt.Errorf("failed to mark submission failed: %w", err)
	}

	s.logger.Warn().
		Str("submission_id", id).
		Str("reason", reason).
		Msg("Submission marked failed")

	return nil
}

func (s *feedbackService) PrepareReplay(ctx context.Context, body []byte) error {
	msg, err := models.ParseResultMessage(body)
	if err != nil {
		return nil
	}

	err = s.submissionRepo.Reopen(ctx, msg.SubmissionID, RetriesExhaustedReason)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to reopen submission: %w", err)
	}

	s.logger.Info().
		Str("submission_id", msg.SubmissionID).
		Msg("Submission reopened for replay")

	return nil
}
