package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voicelog/internal/apperr"
	"voicelog/internal/models"

	"go.uber.org/zap"
)

// APIClient handles communication with the backend API
type APIClient struct {
	baseURL    string
	apiKey     string
	deviceID   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// SetDeviceID sets the device identifier sent with every request
func (c *APIClient) SetDeviceID(deviceID string) {
	c.deviceID = deviceID
}

// SubmitEntry sends one entry to the backend. The client id doubles as the
// idempotency key, so a retried submission is deduplicated server-side.
func (c *APIClient) SubmitEntry(ctx context.Context, entry models.SubmitEntryRequest) (*models.SubmitEntryResponse, error) {
	if entry.ClientID == "" {
		return nil, apperr.Validation("clientId", "must not be empty")
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/entries", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", entry.ClientID)
	c.setAuth(req)

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("Failed to submit entry",
			zap.Error(err),
			zap.String("entry_id", entry.ClientID),
			zap.Duration("duration", duration),
		)
		return nil, &apperr.TransientSyncError{Cause: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var result models.SubmitEntryResponse
		if err := json.Unmarshal(body, &result); err != nil || result.RemoteID == "" {
			return nil, &BackendError{
				Message:    fmt.Sprintf("backend acknowledged entry without a remote id: %s", string(body)),
				StatusCode: resp.StatusCode,
			}
		}
		c.logger.Debug("Entry submitted",
			zap.String("entry_id", entry.ClientID),
			zap.String("remote_id", result.RemoteID),
			zap.Int("status_code", resp.StatusCode),
			zap.Duration("duration", duration),
		)
		return &result, nil
	}

	// Handle different error status codes
	errMsg := fmt.Sprintf("backend returned status %d: %s", resp.StatusCode, string(body))

	switch resp.StatusCode {
	case http.StatusConflict:
		// Already stored under this client id.
		var result models.SubmitEntryResponse
		if err := json.Unmarshal(body, &result); err == nil && result.RemoteID != "" {
			c.logger.Info("Entry already known to backend",
				zap.String("entry_id", entry.ClientID),
				zap.String("remote_id", result.RemoteID),
			)
			return &result, nil
		}
		return nil, &BackendError{Message: errMsg, StatusCode: resp.StatusCode}
	case http.StatusUnauthorized, http.StatusForbidden:
		c.logger.Error("Authentication failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(body)),
		)
		return nil, &AuthError{Message: errMsg, StatusCode: resp.StatusCode}
	case http.StatusTooManyRequests:
		c.logger.Warn("Rate limited",
			zap.Int("status_code", resp.StatusCode),
		)
		return nil, &RateLimitError{Message: errMsg, StatusCode: resp.StatusCode}
	case http.StatusBadRequest:
		c.logger.Error("Invalid request",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(body)),
		)
		return nil, &BadRequestError{Message: errMsg, StatusCode: resp.StatusCode}
	case http.StatusNotFound, http.StatusGone, http.StatusUnprocessableEntity:
		c.logger.Error("Entry rejected",
			zap.String("entry_id", entry.ClientID),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(body)),
		)
		return nil, &RejectedError{Message: errMsg, StatusCode: resp.StatusCode}
	default:
		c.logger.Error("Backend error",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(body)),
		)
		return nil, &BackendError{Message: errMsg, StatusCode: resp.StatusCode}
	}
}

// HealthCheck checks if the backend is reachable
func (c *APIClient) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

func (c *APIClient) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-ID", c.deviceID)
	}
}

// Error types. Retryable reports whether resubmitting the same entry later
// can succeed.

type AuthError struct {
	Message    string
	StatusCode int
}

func (e *AuthError) Error() string {
	return e.Message
}

// Retryable is true: credentials can be fixed without touching the entry.
func (e *AuthError) Retryable() bool { return true }

type RateLimitError struct {
	Message    string
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return e.Message
}

func (e *RateLimitError) Retryable() bool { return true }

type BadRequestError struct {
	Message    string
	StatusCode int
}

func (e *BadRequestError) Error() string {
	return e.Message
}

func (e *BadRequestError) Retryable() bool { return false }

// RejectedError means the backend refused the entry itself.
type RejectedError struct {
	Message    string
	StatusCode int
}

func (e *RejectedError) Error() string {
	return e.Message
}

func (e *RejectedError) Retryable() bool { return false }

func (e *RejectedError) Is(target error) bool { return target == apperr.ErrRejected }

type BackendError struct {
	Message    string
	StatusCode int
}

func (e *BackendError) Error() string {
	return e.Message
}

func (e *BackendError) Retryable() bool { return true }
