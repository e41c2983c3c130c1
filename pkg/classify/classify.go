// Package classify labels single camera frames for the analysis server.
//
// Implementations:
//   - Mock   - fixed or scripted labels, for tests and demos
//   - Vision - any OpenAI-compatible chat completions API with image input
//   - Gemini - Gemini generateContent with inline image data
//   - DNN    - a local OpenCV DNN model (build tag "opencv")
//
// Every classifier maps a frame to exactly one of its Classes.
package classify

import (
	"context"
	"strings"
)

// DefaultClasses are the confidence labels produced when none are configured.
var DefaultClasses = []string{"confident", "unconfident"}

// Classifier labels one JPEG frame.
type Classifier interface {
	// Classify returns one of Classes for the frame.
	Classify(ctx context.Context, jpeg []byte) (string, error)

	// Classes returns the labels this classifier can produce, in model order.
	Classes() []string

	// Name identifies the implementation ("mock", "vision", "gemini", "dnn").
	Name() string

	// Close releases model resources.
	Close() error
}

// MatchClass finds the class named in a free-form reply. Longer class names
// are tried first so "unconfident" is not read as "confident".
func MatchClass(reply string, classes []string) (string, bool) {
	text := strings.ToLower(reply)

	best := ""
	for _, c := range classes {
		if c == "" || !strings.Contains(text, strings.ToLower(c)) {
			continue
		}
		if len(c) > len(best) {
			best = c
		}
	}
	return best, best != ""
}

// argmax returns the index of the largest score, or -1 for no scores.
func argmax(scores []float32) int {
	idx := -1
	for i, s := range scores {
		if idx < 0 || s > scores[idx] {
			idx = i
		}
	}
	return idx
}
