package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/RubachokBoss/artwork-feedback/internal/metrics"
	"github.com/RubachokBoss/artwork-feedback/internal/models"
	"github.com/RubachokBoss/artwork-feedback/internal/repository"
	"github.com/RubachokBoss/artwork-feedback/internal/service/integration"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type IntakeService interface {
	// Submit always returns the submission id once the record exists, even
	// when a later step fails with ErrAssetFetch, ErrAssetStore or ErrEnqueue.
	Submit(ctx context.Context, req *models.SubmitRequest) (*models.SubmitResponse, error)
	GetStatus(ctx context.Context, id string) (*models.StatusResponse, error)
	QueueStats(ctx context.Context) (*models.QueueStatsResponse, error)
}

// QueueStatsReader reports queue depths with a passive read.
type QueueStatsReader interface {
	QueueStats(queue string) (models.QueueStats, error)
}

type intakeService struct {
	submissionRepo repository.SubmissionRepository
	assetStorage   repository.AssetStorage
	assetFetcher   integration.AssetFetcher
	jobPublisher   integration.JobPublisher
	statsReader    QueueStatsReader
	jobsQueue      string
	resultsQueue   string
	validate       *validator.Validate
	newID          func() string
	logger         zerolog.Logger
}

func NewIntakeService(
	submissionRepo repository.SubmissionRepository,
	assetStorage repository.AssetStorage,
	assetFetcher integration.AssetFetcher,
	jobPublisher integration.JobPublisher,
	statsReader QueueStatsReader,
	jobsQueue, resultsQueue string,
	logger zerolog.Logger,
) IntakeService {
	return &intakeService{
		submissionRepo: submissionRepo,
		assetStorage:   assetStorage,
		assetFetcher:   assetFetcher,
		jobPublisher:   jobPublisher,
		statsReader:    statsReader,
		jobsQueue:      jobsQueue,
		resultsQueue:   resultsQueue,
		validate:       validator.New(),
		newID:          func() string { return uuid.New().String() },
		logger:         logger,
	}
}

func (s *intakeService) Submit(ctx context.Context, req *models.SubmitRequest) (*models.SubmitResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		metrics.RecordSubmission("invalid")
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	now := time.Now()
	submission := &models.Submission{
		ID:           s.newID(),
		AssignmentID: req.AssignmentID,
		StudentID:    req.StudentID,
		AssetURL:     req.AssetURL,
		Status:       models.SubmissionStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.submissionRepo.Create(ctx, submission); err != nil {
		metrics.RecordSubmission("store_failed")
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	s.logger.Info().
		Str("submission_id", submission.ID).
		Str("assignment_id", submission.AssignmentID).
		Str("student_id", submission.StudentID).
		Msg("Submission created")

	resp := &models.SubmitResponse{
		SubmissionID: submission.ID,
		AssetURL:     submission.AssetURL,
		Status:       submission.Status,
	}

	// From here on the row exists; failures leave it pending and visible.
	asset, err := s.assetFetcher.Fetch(ctx, req.AssetURL)
	if err != nil {
		s.logger.Error().Err(err).
			Str("submission_id", submission.ID).
			Str("asset_url", req.AssetURL).
			Msg("Failed to fetch asset")
		metrics.RecordSubmission("asset_fetch_failed")
		return resp, fmt.Errorf("%w: %v", ErrAssetFetch, err)
	}

	key := path.Join("submissions", submission.ID, asset.FileName)
	durableURL, err := s.assetStorage.Put(ctx, key, bytes.NewReader(asset.Body), int64(len(asset.Body)), asset.ContentType, asset.Checksum)
	if err != nil {
		s.logger.Error().Err(err).
			Str("submission_id", submission.ID).
			Str("key", key).
			Msg("Failed to store asset copy")
		metrics.RecordSubmission("asset_store_failed")
		return resp, fmt.Errorf("%w: %v", ErrAssetStore, err)
	}

	if err := s.submissionRepo.UpdateAssetURL(ctx, submission.ID, durableURL); err != nil {
		s.logger.Error().Err(err).
			Str("submission_id", submission.ID).
			Msg("Failed to record durable asset url")
		metrics.RecordSubmission("asset_store_failed")
		return resp, fmt.Errorf("%w: %v", ErrAssetStore, err)
	}
	resp.AssetURL = durableURL

	job := &models.JobMessage{
		SubmissionID: submission.ID,
		AssignmentID: submission.AssignmentID,
		StudentID:    submission.StudentID,
		ImageURL:     durableURL,
	}
	if err := s.jobPublisher.PublishJob(ctx, job); err != nil {
		s.logger.Error().Err(err).
			Str("submission_id", submission.ID).
			Msg("Failed to enqueue job")
		metrics.RecordSubmission("enqueue_failed")
		return resp, fmt.Errorf("%w: %v", ErrEnqueue, err)
	}

	metrics.RecordSubmission("accepted")

	return resp, nil
}

func (s *intakeService) GetStatus(ctx context.Context, id string) (*models.StatusResponse, error) {
	submission, err := s.submissionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	if submission == nil {
		return nil, fmt.Errorf("%w: %s", ErrSubmissionNotFound, id)
	}

	resp := &models.StatusResponse{Status: submission.Status}
	if submission.Status == models.SubmissionStatusCompleted {
		feedback := ""
		if submission.OverallFeedback != nil {
			feedback = *submission.OverallFeedback
		}
		resp.OverallFeedback = &feedback
	}

	return resp, nil
}

func (s *intakeService) QueueStats(ctx context.Context) (*models.QueueStatsResponse, error) {
	if s.statsReader == nil {
		return nil, errors.New("queue stats unavailable")
	}

	jobs, err := s.statsReader.QueueStats(s.jobsQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s stats: %w", s.jobsQueue, err)
	}

	results, err := s.statsReader.QueueStats(s.resultsQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s stats: %w", s.resultsQueue, err)
	}

	return &models.QueueStatsResponse{Jobs: jobs, Results: results}, nil
}
