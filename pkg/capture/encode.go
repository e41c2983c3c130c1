package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
)

// DefaultJPEGQuality is the quality used when none is configured.
const DefaultJPEGQuality = 85

// EncodeJPEG encodes a frame as a single baseline JPEG with no container or metadata.
func EncodeJPEG(f Frame, quality int) ([]byte, error) {
	if !f.HasDimensions() {
		return nil, ErrNotReady
	}
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJPEGBase64 encodes a frame as base64 JPEG text.
func EncodeJPEGBase64(f Frame, quality int) (string, error) {
	data, err := EncodeJPEG(f, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeJPEG decodes JPEG bytes into a frame with the given sequence number.
func DecodeJPEG(data []byte, seq uint64) (Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("decode jpeg: %w", err)
	}
	return frameFromImage(img, seq), nil
}

func frameFromImage(img image.Image, seq uint64) Frame {
	b := img.Bounds()
	return Frame{
		Image:      img,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Seq:        seq,
		CapturedAt: now(),
	}
}
