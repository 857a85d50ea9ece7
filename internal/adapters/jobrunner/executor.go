package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/slopecast/slopecast-api/internal/domain/model"
)

const maxResponseBodyBytes = 4 * 1024 // 4KB to avoid holding excessively large payloads

// Executor performs the external call of a claimed job.
type Executor interface {
	// Execute returns the response for any completed exchange. A non-nil error marks the
	// attempt as failed; the result may still be set for non-2xx responses.
	Execute(ctx context.Context, job *model.Job) (*model.HTTPResult, error)
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.StatusCode)
}

// HTTPStatus implements errors.StatusCoder.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// HTTPExecutor issues a GET to the job URL.
type HTTPExecutor struct {
	client *resty.Client
}

// NewHTTPExecutor constructs an HTTPExecutor. A nil client uses a default resty client.
func NewHTTPExecutor(client *resty.Client) *HTTPExecutor {
	if client == nil {
		client = resty.New().SetHeader("User-Agent", "slopecast-api")
	}
	return &HTTPExecutor{client: client}
}

// Execute implements Executor.
func (e *HTTPExecutor) Execute(ctx context.Context, job *model.Job) (*model.HTTPResult, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}
	start := time.Now()
	resp, err := e.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(job.URL)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	raw := resp.RawBody()
	body, truncated, readErr := readResponseBody(raw)
	if raw != nil {
		if closeErr := raw.Close(); closeErr != nil && readErr == nil {
			readErr = closeErr
		}
	}
	if readErr != nil {
		return nil, fmt.Errorf("read response body: %w", readErr)
	}

	result := &model.HTTPResult{
		StatusCode:    resp.StatusCode(),
		Headers:       flattenResponseHeaders(resp.Header()),
		Body:          body,
		BodyTruncated: truncated,
		Duration:      time.Since(start),
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return result, &StatusError{StatusCode: resp.StatusCode()}
	}
	return result, nil
}

func flattenResponseHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, values := range h {
		out[k] = strings.Join(values, ", ")
	}
	return out
}

func readResponseBody(body io.Reader) (string, bool, error) {
	if body == nil {
		return "", false, nil
	}
	limited := io.LimitReader(body, maxResponseBodyBytes+1)
	data, readErr := io.ReadAll(limited)
	truncated := len(data) > maxResponseBodyBytes
	if truncated {
		data = data[:maxResponseBodyBytes]
		if _, drainErr := io.Copy(io.Discard, body); drainErr != nil && readErr == nil {
			readErr = drainErr
		}
	}
	return string(data), truncated, readErr
}
