package service

import (
	"errors"
	"strings"

	"github.com/RubachokBoss/artwork-feedback/internal/models"
	"github.com/RubachokBoss/artwork-feedback/internal/repository"
	"github.com/lib/pq"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrAssetFetch     = errors.New("asset fetch failed")
	ErrAssetStore     = errors.New("asset store failed")
	ErrEnqueue        = errors.New("enqueue failed")

	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrSubmissionTerminal  = errors.New("submission already in terminal state")
	ErrMissingStudent      = errors.New("missing student reference")
	ErrInvalidData         = errors.New("invalid data")
	ErrMissingSubmissionID = errors.New("missing submission id")

	ErrNotification      = errors.New("notification failed")
	ErrFlowNotConfigured = errors.New("notification flow not configured")
)

var nonRetryableMarkers = []string{
	"record not found",
	"entity not found",
	"invalid data",
	"validation",
	"permission denied",
	"duplicate entry",
	"missing submission id",
}

// IsRetryable reports whether applying a result may succeed on redelivery.
// Unknown errors are retryable so transient faults are never dropped.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrSubmissionNotFound),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, ErrInvalidData),
		errors.Is(err, ErrMissingSubmissionID),
		errors.Is(err, ErrMissingStudent),
		errors.Is(err, models.ErrMalformedMessage):
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "22": // data exception
			return false
		case pqErr.Code.Class() == "23": // integrity constraint violation
			return false
		case pqErr.Code == "42501": // insufficient_privilege
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range nonRetryableMarkers {
		if strings.Contains(msg, marker) {
			return false
		}
	}

	return true
}
