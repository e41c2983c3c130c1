package classify

import "fmt"

// Kind selects a classifier implementation.
type Kind string

const (
	KindMock   Kind = "mock"
	KindVision Kind = "vision"
	KindGemini Kind = "gemini"
	KindDNN    Kind = "dnn"
)

// New creates a classifier of the given kind.
func New(kind Kind, opts ...Option) (Classifier, error) {
	switch kind {
	case KindMock:
		return NewMock(), nil
	case KindVision:
		v, err := NewVision(opts...)
		if err != nil {
			return nil, err
		}
		return v, nil
	case KindGemini:
		g, err := NewGemini(opts...)
		if err != nil {
			return nil, err
		}
		return g, nil
	case KindDNN:
		return NewDNN(opts...)
	default:
		return nil, fmt.Errorf("classify: unknown classifier %q", kind)
	}
}

// Available returns the kinds usable in this build.
func Available() []Kind {
	kinds := []Kind{KindMock, KindVision, KindGemini}
	if dnnAvailable {
		kinds = append(kinds, KindDNN)
	}
	return kinds
}
