package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-jobcoach/internal/httpc"
)

const defaultVisionPrompt = "You are scoring a mock job interview from a single webcam frame. " +
	"Judge how confident the candidate appears from posture and expression. Answer with exactly one word from this list: %s."

// Vision classifies frames with an OpenAI-compatible vision model.
type Vision struct {
	remote
	baseURL string
}

// remote is the HTTP plumbing shared by API-backed classifiers.
type remote struct {
	config *Config
	http   *http.Client
	logger *slog.Logger
}

// NewVision creates a vision classifier.
func NewVision(opts ...Option) (*Vision, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if len(cfg.Classes) == 0 {
		return nil, fmt.Errorf("%w: no classes configured", ErrModelUnavailable)
	}

	return &Vision{
		remote:  newRemote(cfg, "classify.vision"),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}, nil
}

// Name returns "vision".
func (v *Vision) Name() string {
	return "vision"
}

// Classify asks the model for one label and maps the reply onto Classes.
func (v *Vision) Classify(ctx context.Context, jpeg []byte) (string, error) {
	if len(jpeg) == 0 {
		return "", ErrEmptyFrame
	}
	start := time.Now()

	prompt := v.prompt()

	payload := map[string]interface{}{
		"model": v.config.Model,
		"messages": []map[string]interface{}{{
			"role": "user",
			"content": []map[string]interface{}{
				{"type": "text", "text": prompt},
				{
					"type": "image_url",
					"image_url": map[string]string{
						"url": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg),
					},
				},
			},
		}},
		"max_tokens":  10,
		"temperature": 0,
	}

	resp, err := v.post(ctx, v.baseURL+"/chat/completions", payload, map[string]string{
		"Authorization": "Bearer " + v.config.APIKey,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", parseError(resp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("classify: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("classify: no choices returned")
	}

	reply := result.Choices[0].Message.Content
	label, ok := MatchClass(reply, v.config.Classes)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLabel, reply)
	}

	v.logger.Debug("frame classified", "label", label, "latency_ms", time.Since(start).Milliseconds())
	return label, nil
}

func newRemote(cfg *Config, component string) remote {
	return remote{
		config: cfg,
		http:   httpc.NewClient(cfg.Timeout),
		logger: cfg.Logger.With("component", component),
	}
}

// Classes returns the configured labels.
func (r *remote) Classes() []string {
	return r.config.Classes
}

// Close releases idle connections.
func (r *remote) Close() error {
	r.http.CloseIdleConnections()
	return nil
}

func (r *remote) prompt() string {
	if r.config.Prompt != "" {
		return r.config.Prompt
	}
	return fmt.Sprintf(defaultVisionPrompt, strings.Join(r.config.Classes, ", "))
}

func (r *remote) post(ctx context.Context, url string, payload interface{}, headers map[string]string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("classify: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("classify: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return r.doWithRetry(ctx, req, body)
}

// doWithRetry retries transport errors, 429 and 5xx with linear backoff.
func (r *remote) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.config.RetryDelay * time.Duration(attempt)):
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := r.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("classify: %w", err)
			r.logger.Warn("request failed, retrying", "attempt", attempt+1, "error", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = parseError(resp)
			resp.Body.Close()
			r.logger.Warn("retrying request", "attempt", attempt+1, "status", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// parseError reads an OpenAI or Gemini error body.
func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	// OpenAI sends a string code, Gemini a number
	var errResp struct {
		Error struct {
			Message string          `json:"message"`
			Code    json.RawMessage `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = strings.Trim(string(errResp.Error.Code), `"`)
		if code == "null" {
			code = ""
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
	}
}

var _ Classifier = (*Vision)(nil)
