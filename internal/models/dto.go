package models

// Data Transfer Objects

type SubmitRequest struct {
	AssignmentID string `json:"assignment_id" validate:"required,max=255"`
	StudentID    string `json:"student_id" validate:"required,max=255"`
	AssetURL     string `json:"asset_url" validate:"required,url"`
}

type SubmitResponse struct {
	SubmissionID string           `json:"submission_id"`
	AssetURL     string           `json:"asset_url"`
	Status       SubmissionStatus `json:"status"`
}

type StatusResponse struct {
	Status          SubmissionStatus `json:"status"`
	OverallFeedback *string          `json:"overall_feedback,omitempty"`
}

type QueueStatsResponse struct {
	Jobs    QueueStats `json:"jobs"`
	Results QueueStats `json:"results"`
}
