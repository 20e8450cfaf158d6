package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type (
	// NetworkError is returned when no response could be obtained.
	NetworkError struct {
		Method string
		URL    string
		Err    error
	}

	// AuthorizationError is returned on a 401 that survived the refresh-and-retry cycle,
	// or when the refresh itself failed.
	AuthorizationError struct {
		Err error
	}

	// ServerError is any other non-2xx response.
	ServerError struct {
		Status int
		Body   []byte
	}
)

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *AuthorizationError) Error() string {
	if e.Err == nil {
		return "not authorized"
	}
	return "not authorized: " + e.Err.Error()
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: status=%d, body=%s", e.Status, e.Body)
}

// Message returns the human readable message of the response body, if any.
// The backend reports errors as {"error": "..."} and {"detail": "..."}.
func (e *ServerError) Message() string {
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(e.Body, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Detail != "" {
			return body.Detail
		}
	}
	if msg := strings.TrimSpace(string(e.Body)); msg != "" && len(msg) < 200 {
		return msg
	}
	return http.StatusText(e.Status)
}
