package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// NotificationClient triggers outbound messaging flows for a contact.
type NotificationClient interface {
	StartFlow(ctx context.Context, flowID, contactID string, defaultResults map[string]string) (bool, error)
}

type notificationClient struct {
	baseURL           string
	flowStartEndpoint string
	token             string
	retryCount        int
	retryDelay        time.Duration
	client            *http.Client
	logger            zerolog.Logger
}

type flowStartRequest struct {
	Flow           string            `json:"flow"`
	Contacts       []string          `json:"contacts"`
	DefaultResults map[string]string `json:"default_results"`
}

func NewNotificationClient(baseURL, flowStartEndpoint, token string, timeout time.Duration, retryCount int, retryDelay time.Duration, logger zerolog.Logger) NotificationClient {
	return &notificationClient{
		baseURL:           baseURL,
		flowStartEndpoint: flowStartEndpoint,
		token:             token,
		retryCount:        retryCount,
		retryDelay:        retryDelay,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *notificationClient) StartFlow(ctx context.Context, flowID, contactID string, defaultResults map[string]string) (bool, error) {
	body, err := json.Marshal(flowStartRequest{
		Flow:           flowID,
		Contacts:       []string{contactID},
		DefaultResults: defaultResults,
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal flow start: %w", err)
	}

	var lastErr error
	for i := 0; i <= c.retryCount; i++ {
		if i > 0 {
			c.logger.Warn().Int("attempt", i).Str("flow_id", flowID).Msg("Retrying flow start")
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(i)):
			}
		}

		status, err := c.post(ctx, body)
		if err != nil {
			lastErr = err
			continue
		}

		if status >= 200 && status < 300 {
			c.logger.Info().
				Str("flow_id", flowID).
				Str("contact_id", contactID).
				Msg("Flow started")
			return true, nil
		}

		// The gateway answered; a non-2xx is a verdict, not a transport fault.
		return false, fmt.Errorf("notification gateway returned status %d", status)
	}

	return false, fmt.Errorf("failed to start flow after %d attempts: %w", c.retryCount+1, lastErr)
}

func (c *notificationClient) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.flowStartEndpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
