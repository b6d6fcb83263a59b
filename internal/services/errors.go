package services

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/desertthunder/mixgen/internal/shared"
)

// APIError is a non-401 error response from the catalog API.
type APIError struct {
	Status  int
	Message string
	Route   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify API error: %s: status %d: %s", e.Route, e.Status, e.Message)
}

// Unwrap lets callers match any API error with errors.Is(err, [shared.ErrAPIRequest]).
func (e *APIError) Unwrap() error {
	return shared.ErrAPIRequest
}

type errorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// responseError converts an unsuccessful response into an error.
//
// 401 maps to [shared.ErrSessionExpired]; everything else becomes an [*APIError] carrying the API's message.
func responseError(route string, status int, body []byte) error {
	if status == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s returned 401", shared.ErrSessionExpired, route)
	}

	apiErr := &APIError{Status: status, Route: route, Message: http.StatusText(status)}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
	}

	return apiErr
}
