package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	httpapi "github.com/fyrsmithlabs/taskbot/internal/http"
)

const requestTimeout = 2 * time.Minute

var errNoUser = errors.New("a user id is required: pass --user or set TASKBOT_USER")

// apiError is a non-2xx response from the server.
type apiError struct {
	Status int
	Body   httpapi.ErrorResponse
}

func (e *apiError) Error() string {
	if e.Body.Kind != "" {
		return fmt.Sprintf("server returned status %d (%s): %s", e.Status, e.Body.Kind, e.Body.Error)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Body.Error)
}

// userPath returns /api/v1/users/<user>/<rest>.
func userPath(rest string) (string, error) {
	if userID == "" {
		return "", errNoUser
	}
	return "/api/v1/users/" + url.PathEscape(userID) + "/" + rest, nil
}

// call sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil).
func call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	target := strings.TrimRight(serverURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(data, &apiErr.Body) != nil || apiErr.Body.Error == "" {
			apiErr.Body.Error = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
