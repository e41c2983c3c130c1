//go:build !opencv

package classify

import "fmt"

const dnnAvailable = false

// NewDNN returns an error when OpenCV is not compiled in.
func NewDNN(opts ...Option) (Classifier, error) {
	return nil, fmt.Errorf("%w: dnn requires building with -tags opencv", ErrBackendUnsupported)
}
