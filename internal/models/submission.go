package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type Submission struct {
	ID              string           `json:"id" db:"id"`
	AssignmentID    string           `json:"assignment_id" db:"assignment_id"`
	StudentID       string           `json:"student_id" db:"student_id"`
	AssetURL        string           `json:"asset_url" db:"asset_url"`
	Status          SubmissionStatus `json:"status" db:"status"`
	Grade           *float64         `json:"grade,omitempty" db:"grade"`
	PlagiarismScore *float64         `json:"plagiarism_score,omitempty" db:"plagiarism_score"`
	SimilarSources  json.RawMessage  `json:"similar_sources,omitempty" db:"similar_sources"`
	Feedback        json.RawMessage  `json:"feedback,omitempty" db:"feedback"`
	Summary         *string          `json:"summary,omitempty" db:"summary"`
	OverallFeedback *string          `json:"overall_feedback,omitempty" db:"overall_feedback"`
	FailureReason   *string          `json:"failure_reason,omitempty" db:"failure_reason"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

// SubmissionResult is the set of fields written when a result is applied.
type SubmissionResult struct {
	Grade           float64
	PlagiarismScore *float64
	SimilarSources  json.RawMessage
	Feedback        json.RawMessage
	Summary         *string
	OverallFeedback string
	CompletedAt     time.Time
}

type SubmissionStatus string

const (
	SubmissionStatusPending   SubmissionStatus = "pending"
	SubmissionStatusCompleted SubmissionStatus = "completed"
	SubmissionStatusFailed    SubmissionStatus = "failed"
)

func (s SubmissionStatus) String() string {
	return string(s)
}

func (s SubmissionStatus) IsTerminal() bool {
	switch s {
	case SubmissionStatusCompleted, SubmissionStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a submission in state s may move to next.
// completed -> completed is allowed so that a redelivered result can be
// reapplied with the same data. Replay reopens a dead-lettered failure
// through the repository, outside these transitions.
func (s SubmissionStatus) CanTransitionTo(next SubmissionStatus) bool {
	switch s {
	case SubmissionStatusPending:
		return next == SubmissionStatusCompleted || next == SubmissionStatusFailed
	case SubmissionStatusCompleted:
		return next == SubmissionStatusCompleted
	case SubmissionStatusFailed:
		return false
	default:
		return false
	}
}

func ParseSubmissionStatus(s string) (SubmissionStatus, error) {
	switch SubmissionStatus(s) {
	case SubmissionStatusPending, SubmissionStatusCompleted, SubmissionStatusFailed:
		return SubmissionStatus(s), nil
	default:
		return "", fmt.Errorf("unknown submission status %q", s)
	}
}
