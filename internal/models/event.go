package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrMalformedMessage = errors.New("malformed message")

// JobMessage is published by intake once the submission row and the asset
// copy are durable.
type JobMessage struct {
	SubmissionID string `json:"submission_id"`
	AssignmentID string `json:"assign_id"`
	StudentID    string `json:"student_id"`
	ImageURL     string `json:"img_url"`
}

// ResultMessage is the grader output after tolerant parsing. Grade is 0 when
// the upstream value was missing or not a number.
type ResultMessage struct {
	SubmissionID    string
	StudentID       string
	Grade           float64
	GradeParsed     bool
	PlagiarismScore *float64
	SimilarSources  json.RawMessage
	Feedback        json.RawMessage
	OverallFeedback string
	Summary         *string
}

type rawResultMessage struct {
	SubmissionID        json.RawMessage `json:"submission_id"`
	StudentID           json.RawMessage `json:"student_id"`
	GradeRecommendation json.RawMessage `json:"grade_recommendation"`
	PlagiarismScore     json.RawMessage `json:"plagiarism_score"`
	SimilarSources      json.RawMessage `json:"similar_sources"`
	Feedback            json.RawMessage `json:"feedback"`
	Summary             json.RawMessage `json:"summary"`
}

// ParseResultMessage is the only place where grader payloads are interpreted.
// It fails with ErrMalformedMessage when the body is not a JSON object or has
// no submission id; every other field degrades to its zero value.
func ParseResultMessage(body []byte) (*ResultMessage, error) {
	var raw rawResultMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	submissionID := strings.TrimSpace(looseString(raw.SubmissionID))
	if submissionID == "" {
		return nil, fmt.Errorf("%w: missing submission id", ErrMalformedMessage)
	}

	msg := &ResultMessage{
		SubmissionID: submissionID,
		StudentID:    strings.TrimSpace(looseString(raw.StudentID)),
	}

	if grade, ok := looseFloat(raw.GradeRecommendation); ok {
		msg.Grade = grade
		msg.GradeParsed = true
	}

	if score, ok := looseFloat(raw.PlagiarismScore); ok {
		msg.PlagiarismScore = &score
	}

	if isJSONKind(raw.SimilarSources, '[') {
		msg.SimilarSources = raw.SimilarSources
	}

	switch {
	case isJSONKind(raw.Feedback, '{'):
		msg.Feedback = raw.Feedback
		var fb struct {
			OverallFeedback json.RawMessage `json:"overall_feedback"`
		}
		if err := json.Unmarshal(raw.Feedback, &fb); err == nil {
			msg.OverallFeedback = looseString(fb.OverallFeedback)
		}
	case isJSONKind(raw.Feedback, '"'):
		msg.OverallFeedback = looseString(raw.Feedback)
		msg.Feedback, _ = json.Marshal(map[string]string{"overall_feedback": msg.OverallFeedback})
	}

	if isJSONKind(raw.Summary, '"') {
		summary := looseString(raw.Summary)
		msg.Summary = &summary
	}

	return msg, nil
}

// Result converts the parsed message into the columns written on completion.
func (m *ResultMessage) Result() SubmissionResult {
	return SubmissionResult{
		Grade:           m.Grade,
		PlagiarismScore: m.PlagiarismScore,
		SimilarSources:  m.SimilarSources,
		Feedback:        m.Feedback,
		Summary:         m.Summary,
		OverallFeedback: m.OverallFeedback,
	}
}

func isJSONKind(raw json.RawMessage, first byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == first
}

// looseString accepts a JSON string or number; anything else is empty.
func looseString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return s
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return ""
		}
		return n.String()
	default:
		return ""
	}
}

func looseFloat(raw json.RawMessage) (float64, bool) {
	s := strings.TrimSpace(looseString(raw))
	if s == "" {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return f, true
}

type QueueStats struct {
	Queue              string `json:"queue"`
	Messages           int    `json:"messages"`
	Consumers          int    `json:"consumers"`
	DeadLetterQueue    string `json:"dead_letter_queue"`
	DeadLetterMessages int    `json:"dead_letter_messages"`
}
