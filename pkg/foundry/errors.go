package foundry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrAgentNotFound indicates a lookup-by-name found no matching agent.
// Callers typically suggest running the deploy step first.
var ErrAgentNotFound = errors.New("agent not found")

// ServiceError surfaces a non-2xx response from the hosting service with
// whatever detail its error envelope carried.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("hosting service error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("hosting service error (%d, %s): %s", e.StatusCode, e.Code, e.Message)
}

// errorEnvelope models the service's error payload.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func readServiceError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("hosting service status %d: %w", resp.StatusCode, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return &ServiceError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return &ServiceError{StatusCode: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}

	return &ServiceError{StatusCode: resp.StatusCode, Message: string(body)}
}
