package jobs

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// Speech asks the backend to synthesize question index and returns where the
// audio can be fetched. Questions must have been generated first.
func (c *Client) Speech(ctx context.Context, index int) (*SpeechResult, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: negative question index %d", ErrInvalidRequest, index)
	}

	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf(c.config.Routes.Speech, index), "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out SpeechResult
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	out.Index = index
	return &out, nil
}

// FetchAudio downloads the audio a SpeechResult points at. Relative
// references are resolved against the base URL.
func (c *Client) FetchAudio(ctx context.Context, sr *SpeechResult) ([]byte, error) {
	if sr == nil || sr.AudioURL == "" {
		return nil, ErrNoAudio
	}

	resp, err := c.do(ctx, http.MethodGet, sr.AudioURL, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jobs: read audio: %w", err)
	}
	return data, nil
}

// SpeakAll synthesizes and downloads audio for questions 0..n-1 concurrently.
// Results are in question order; the first failure cancels the rest.
func (c *Client) SpeakAll(ctx context.Context, n int) ([]Spoken, error) {
	if n <= 0 {
		return nil, nil
	}

	out := make([]Spoken, n)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			sr, err := c.Speech(ctx, i)
			if err != nil {
				return fmt.Errorf("question %d: %w", i, err)
			}
			audio, err := c.FetchAudio(ctx, sr)
			if err != nil {
				return fmt.Errorf("question %d audio: %w", i, err)
			}
			// Each goroutine owns its own slot
			out[i] = Spoken{SpeechResult: *sr, Audio: audio}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
