package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"time"
)

// minH264Bytes is the smallest access unit worth handing to the decoder.
const minH264Bytes = 100

// h264Decoder turns an Annex-B H264 buffer into one still image.
type h264Decoder interface {
	Decode(ctx context.Context, annexB []byte) (image.Image, error)
}

// ffmpegDecoder shells out to ffmpeg with pipe I/O, one process per access unit.
type ffmpegDecoder struct {
	binary  string
	timeout time.Duration
}

func newFFmpegDecoder() *ffmpegDecoder {
	return &ffmpegDecoder{
		binary:  "ffmpeg",
		timeout: 200 * time.Millisecond,
	}
}

// Decode returns the first picture in annexB.
func (d *ffmpegDecoder) Decode(ctx context.Context, annexB []byte) (image.Image, error) {
	if len(annexB) < minH264Bytes {
		return nil, ErrNotReady
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.binary,
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(annexB)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Partial GOPs without a keyframe make ffmpeg exit non-zero
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	f, err := DecodeJPEG(stdout.Bytes(), 0)
	if err != nil {
		return nil, err
	}
	if looksBlank(f.Image) {
		return nil, ErrNotReady
	}
	return f.Image, nil
}

// looksBlank reports whether img is the near-black or flat gray picture decoders
// emit before the first keyframe.
func looksBlank(img image.Image) bool {
	b := img.Bounds()
	if b.Dx() < 16 || b.Dy() < 16 {
		return true
	}

	var rSum, gSum, bSum, n int
	for y := b.Min.Y; y < b.Max.Y; y += b.Dy() / 10 {
		for x := b.Min.X; x < b.Max.X; x += b.Dx() / 10 {
			r, g, bl, _ := img.At(x, y).RGBA()
			rSum += int(r >> 8)
			gSum += int(g >> 8)
			bSum += int(bl >> 8)
			n++
		}
	}
	if n == 0 {
		return true
	}

	avgR, avgG, avgB := rSum/n, gSum/n, bSum/n
	if avgR < 30 && avgG < 30 && avgB < 30 {
		return true
	}
	diff := abs(avgR-avgG) + abs(avgG-avgB) + abs(avgR-avgB)
	return diff < 15 && avgR > 100 && avgR < 150
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
