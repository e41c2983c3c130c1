// Package jobs is a client for the job recommendation backend: profile
// summaries, job recommendations, interview questions and question audio.
//
// Example usage:
//
//	c, err := jobs.New(jobs.WithBaseURL("http://localhost:8000"))
//	recs, err := c.Recommend(ctx, jobs.RecommendRequest{Profile: summary})
//	questions, err := c.GenerateQuestions(ctx, jobs.QuestionsRequest{JobDescription: recs[0].Description})
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/teslashibe/go-jobcoach/internal/httpc"
	"github.com/teslashibe/go-jobcoach/pkg/resume"
)

// Client talks to the recommendation backend. It is safe for concurrent use.
type Client struct {
	baseURL  string
	config   *Config
	http     *http.Client
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates a client.
func New(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.BaseURL == "" {
		return nil, errors.New("jobs: base URL required")
	}

	return &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		config:   cfg,
		http:     httpc.NewClient(cfg.Timeout),
		validate: validator.New(),
		logger:   cfg.Logger.With("component", "jobs"),
	}, nil
}

// Summarize summarizes free-text profile input.
func (c *Client) Summarize(ctx context.Context, req SummarizeRequest) (*Summary, error) {
	if err := c.check(&req); err != nil {
		return nil, err
	}

	var out Summary
	if err := c.postJSON(ctx, c.config.Routes.Summarize, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadResume uploads a parsed resume and returns the backend's summary.
func (c *Client) UploadResume(ctx context.Context, doc *resume.Document) (*Summary, error) {
	if doc == nil || len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: empty resume", ErrInvalidRequest)
	}
	if _, err := resume.KindOf(doc.Name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, doc.Name))
	header.Set("Content-Type", doc.ContentType())
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("jobs: create form part: %w", err)
	}
	if _, err := part.Write(doc.Data); err != nil {
		return nil, fmt.Errorf("jobs: write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("jobs: close form: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.config.Routes.Upload, mw.FormDataContentType(), body.Bytes())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out Summary
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Recommend returns job openings for a profile, in backend order.
func (c *Client) Recommend(ctx context.Context, req RecommendRequest) ([]Recommendation, error) {
	if req.Date == "" {
		req.Date = today()
	}
	if err := c.check(&req); err != nil {
		return nil, err
	}

	var out struct {
		Recommendations []Recommendation `json:"recommendations"`
	}
	if err := c.postJSON(ctx, c.config.Routes.Recommend, req, &out); err != nil {
		return nil, err
	}
	return out.Recommendations, nil
}

// GenerateQuestions returns interview questions for a job description.
func (c *Client) GenerateQuestions(ctx context.Context, req QuestionsRequest) ([]string, error) {
	if err := c.check(&req); err != nil {
		return nil, err
	}

	var out struct {
		Questions []string `json:"questions"`
	}
	if err := c.postJSON(ctx, c.config.Routes.Questions, req, &out); err != nil {
		return nil, err
	}
	return out.Questions, nil
}

// check runs struct validation.
func (c *Client) check(req interface{}) error {
	if err := c.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("jobs: marshal request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, path, "application/json", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decode(resp, out)
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// do sends a request, retrying transport errors, 429 and 5xx with linear
// backoff. Non-2xx responses are returned as *APIError.
func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) (*http.Response, error) {
	url := c.resolve(path)
	requestID := uuid.NewString()
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("jobs: create request: %w", err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("X-Request-ID", requestID)

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("jobs: %s %s: %w", method, path, err)
			c.logger.Warn("request failed, retrying", "path", path, "attempt", attempt+1, "error", err)
			continue
		}

		c.logger.Debug("backend request", "method", method, "path", path, "status", resp.StatusCode,
			"request_id", requestID, "latency_ms", time.Since(start).Milliseconds())

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		apiErr := parseError(resp)
		resp.Body.Close()
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		c.logger.Warn("retrying request", "path", path, "attempt", attempt+1, "status", apiErr.StatusCode)
	}

	return nil, lastErr
}

func decode(resp *http.Response, out interface{}) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("jobs: decode response: %w", err)
	}
	return nil
}

// parseError reads {"error": "..."} or FastAPI's {"detail": ...}.
func parseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Error  string          `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}

	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &errResp) == nil {
		switch {
		case errResp.Error != "":
			message = errResp.Error
		case len(errResp.Detail) > 0:
			var detail string
			if json.Unmarshal(errResp.Detail, &detail) == nil {
				message = detail
			} else {
				message = string(errResp.Detail)
			}
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &APIError{StatusCode: resp.StatusCode, Message: message}
}
