package classify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiModel   = "gemini-2.0-flash"
)

// Gemini classifies frames with Gemini's generateContent API.
type Gemini struct {
	remote
	endpoint string
}

// NewGemini creates a Gemini classifier. BaseURL and Model default to the
// public Gemini API unless overridden.
func NewGemini(opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = geminiBaseURL
	cfg.Model = geminiModel
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if len(cfg.Classes) == 0 {
		return nil, fmt.Errorf("%w: no classes configured", ErrModelUnavailable)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimSuffix(cfg.BaseURL, "/"), cfg.Model, url.QueryEscape(cfg.APIKey))

	return &Gemini{
		remote:   newRemote(cfg, "classify.gemini"),
		endpoint: endpoint,
	}, nil
}

// Name returns "gemini".
func (g *Gemini) Name() string {
	return "gemini"
}

// Classify asks Gemini for one label and maps the reply onto Classes.
func (g *Gemini) Classify(ctx context.Context, jpeg []byte) (string, error) {
	if len(jpeg) == 0 {
		return "", ErrEmptyFrame
	}
	start := time.Now()

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{{
			"parts": []map[string]interface{}{
				{"text": g.prompt()},
				{"inline_data": map[string]string{
					"mime_type": "image/jpeg",
					"data":      base64.StdEncoding.EncodeToString(jpeg),
				}},
			},
		}},
		"generationConfig": map[string]interface{}{
			"temperature":     0,
			"maxOutputTokens": 10,
		},
	}

	resp, err := g.post(ctx, g.endpoint, payload, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", parseError(resp)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("classify: decode response: %w", err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("classify: no candidates returned")
	}

	reply := result.Candidates[0].Content.Parts[0].Text
	label, ok := MatchClass(reply, g.config.Classes)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLabel, reply)
	}

	g.logger.Debug("frame classified", "label", label, "latency_ms", time.Since(start).Milliseconds())
	return label, nil
}

var _ Classifier = (*Gemini)(nil)
