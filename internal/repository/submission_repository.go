package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/RubachokBoss/artwork-feedback/internal/models"
	"github.com/rs/zerolog"
)

type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	UpdateAssetURL(ctx context.Context, id, assetURL string) error
	Complete(ctx context.Context, id string, result models.SubmissionResult) error
	MarkFailed(ctx context.Context, id, reason string) error
	// Reopen moves a failed submission back to pending when its failure
	// reason starts with reasonPrefix. It returns ErrNotFound otherwise.
	Reopen(ctx context.Context, id, reasonPrefix string) error
}

type submissionRepository struct {
	*PostgresRepository
}

func NewSubmissionRepository(db *sql.DB, logger zerolog.Logger) SubmissionRepository {
	return &submissionRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	query := `
		INSERT INTO submissions (id, assignment_id, student_id, asset_url, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		submission.ID,
		submission.AssignmentID,
		submission.StudentID,
		submission.AssetURL,
		submission.Status.String(),
		submission.CreatedAt,
		submission.UpdatedAt,
	)

	return err
}

// GetByID returns nil without an error when no row matches.
func (r *submissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `
		SELECT id, assignment_id, student_id, asset_url, status, grade, plagiarism_score,
		       similar_sources, feedback, summary, overall_feedback, failure_reason,
		       completed_at, created_at, updated_at
		FROM submissions
		WHERE id = $1
	`

	var (
		submission      models.Submission
		status          string
		grade           sql.NullFloat64
		plagiarismScore sql.NullFloat64
		summary         sql.NullString
		overallFeedback sql.NullString
		failureReason   sql.NullString
		completedAt     sql.NullTime
		similarSources  []byte
		feedback        []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&submission.ID,
		&submission.AssignmentID,
		&submission.StudentID,
		&submission.AssetURL,
		&status,
		&grade,
		&plagiarismScore,
		&similarSources,
		&feedback,
		&summary,
		&overallFeedback,
		&failureReason,
		&completedAt,
		&submission.CreatedAt,
		&submission.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	submission.Status, err = models.ParseSubmissionStatus(status)
	if err != nil {
		return nil, err
	}
	submission.SimilarSources = similarSources
	submission.Feedback = feedback
	if grade.Valid {
		submission.Grade = &grade.Float64
	}
	if plagiarismScore.Valid {
		submission.PlagiarismScore = &plagiarismScore.Float64
	}
	if summary.Valid {
		submission.Summary = &summary.String
	}
	if overallFeedback.Valid {
		submission.OverallFeedback = &overallFeedback.String
	}
	if failureReason.Valid {
		submission.FailureReason = &failureReason.String
	}
	if completedAt.Valid {
		submission.CompletedAt = &completedAt.Time
	}

	return &submission, nil
}

func (r *submissionRepository) UpdateAssetURL(ctx context.Context, id, assetURL string) error {
	query := `
		UPDATE submissions
		SET asset_url = $1, updated_at = $2
		WHERE id = $3
	`

	res, err := r.db.ExecContext(ctx, query, assetURL, time.Now(), id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// Complete writes every result column and the completed status in a single
// statement. Failed rows are left untouched.
func (r *submissionRepository) Complete(ctx context.Context, id string, result models.SubmissionResult) error {
	query := `
		UPDATE submissions
		SET status = $1,
		    grade = $2,
		    plagiarism_score = $3,
		    similar_sources = $4,
		    feedback = $5,
		    summary = $6,
		    overall_feedback = $7,
		    completed_at = COALESCE(completed_at, $8),
		    updated_at = COALESCE(completed_at, $8)
		WHERE id = $9 AND status <> $10
	`

	res, err := r.db.ExecContext(ctx, query,
		models.SubmissionStatusCompleted.String(),
		result.Grade,
		result.PlagiarismScore,
		nullableJSON(result.SimilarSources),
		nullableJSON(result.Feedback),
		result.Summary,
		result.OverallFeedback,
		result.CompletedAt,
		id,
		models.SubmissionStatusFailed.String(),
	)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// MarkFailed never downgrades a completed submission.
func (r *submissionRepository) MarkFailed(ctx context.Context, id, reason string) error {
	query := `
		UPDATE submissions
		SET status = $1, failure_reason = $2, updated_at = $3
		WHERE id = $4 AND status <> $5
	`

	res, err := r.db.ExecContext(ctx, query,
		models.SubmissionStatusFailed.String(),
		reason,
		time.Now(),
		id,
		models.SubmissionStatusCompleted.String(),
	)
	if err != nil {
		return err
	}

	if err := expectAffected(res); err != nil {
		r.logger.Warn().
			Str("submission_id", id).
			Msg("MarkFailed matched no pending submission")
		return err
	}

	return nil
}

func (r *submissionRepository) Reopen(ctx context.Context, id, reasonPrefix string) error {
	query := `
		UPDATE submissions
		SET status = $1, failure_reason = NULL, updated_at = $2
		WHERE id = $3 AND status = $4 AND left(failure_reason, length($5::text)) = $5::text
	`

	res, err := r.db.ExecContext(ctx, query,
		models.SubmissionStatusPending.String(),
		time.Now(),
		id,
		models.SubmissionStatusFailed.String(),
		reasonPrefix,
	)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
