//go:build opencv

package classify

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

const dnnAvailable = true

// DNN classifies frames with a local OpenCV DNN model (ONNX, TFLite, ...).
// Frames are resized to InputSize x InputSize, scaled to [0,1], and the
// highest scoring output index selects the class.
type DNN struct {
	net       gocv.Net
	classes   []string
	inputSize image.Point
	logger    *slog.Logger

	mu sync.Mutex // net is not safe for concurrent Forward
}

// NewDNN loads the model at cfg.ModelPath.
func NewDNN(opts ...Option) (Classifier, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("%w: failed to load %s", ErrModelUnavailable, cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	size := cfg.InputSize
	if size <= 0 {
		size = 224
	}

	return &DNN{
		net:       net,
		classes:   cfg.Classes,
		inputSize: image.Pt(size, size),
		logger:    cfg.Logger.With("component", "classify.dnn"),
	}, nil
}

// Name returns "dnn".
func (d *DNN) Name() string {
	return "dnn"
}

// Classes returns the labels in model output order.
func (d *DNN) Classes() []string {
	return d.classes
}

// Classify runs one forward pass.
func (d *DNN) Classify(ctx context.Context, jpeg []byte) (string, error) {
	if len(jpeg) == 0 {
		return "", ErrEmptyFrame
	}

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmptyFrame, err)
	}
	defer img.Close()
	if img.Empty() {
		return "", ErrEmptyFrame
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	scores, err := out.DataPtrFloat32()
	if err != nil {
		return "", fmt.Errorf("classify: read output: %w", err)
	}

	idx := argmax(scores)
	if idx < 0 || idx >= len(d.classes) {
		return "", fmt.Errorf("%w: output index %d of %d classes", ErrUnknownLabel, idx, len(d.classes))
	}
	return d.classes[idx], nil
}

// Close releases the network.
func (d *DNN) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
