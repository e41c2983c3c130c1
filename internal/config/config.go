// Package config provides environment-backed settings for go-jobcoach commands.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Defaults used when the environment does not override them.
const (
	DefaultBackendURL     = "http://localhost:8000"
	DefaultAnalysisURL    = "ws://localhost:8000/ws/analyze"
	DefaultAnalysisAddr   = ":8000"
	DefaultCaptureBackend = "auto"
	DefaultCameraDevice   = "0"
	DefaultSampleInterval = 100 * time.Millisecond
	DefaultLogLevel       = "info"
)

// Environment variable names.
const (
	EnvBackendURL     = "JOBCOACH_BACKEND_URL"
	EnvAnalysisURL    = "JOBCOACH_ANALYSIS_URL"
	EnvAnalysisAddr   = "JOBCOACH_ANALYSIS_ADDR"
	EnvCaptureBackend = "JOBCOACH_CAPTURE_BACKEND"
	EnvCameraDevice   = "JOBCOACH_CAMERA_DEVICE"
	EnvSampleInterval = "JOBCOACH_SAMPLE_INTERVAL"
	EnvLogLevel       = "JOBCOACH_LOG_LEVEL"
	EnvVisionAPIKey   = "JOBCOACH_VISION_API_KEY"
	EnvVisionBaseURL  = "JOBCOACH_VISION_BASE_URL"
	EnvVisionModel    = "JOBCOACH_VISION_MODEL"
)

// LoadDotEnv loads a .env file from the working directory if one exists.
// A missing file is not an error.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// String returns the value of key, or def when unset or empty.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Duration parses key as a time.Duration, falling back to def when unset or invalid.
func Duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// BackendURL returns the base URL of the recommendation backend.
func BackendURL() string {
	return String(EnvBackendURL, DefaultBackendURL)
}

// AnalysisURL returns the websocket endpoint of the analysis service.
func AnalysisURL() string {
	return String(EnvAnalysisURL, DefaultAnalysisURL)
}

// AnalysisAddr returns the listen address for the bundled analysis server.
func AnalysisAddr() string {
	return String(EnvAnalysisAddr, DefaultAnalysisAddr)
}

// CaptureBackend returns the capture backend name.
func CaptureBackend() string {
	return String(EnvCaptureBackend, DefaultCaptureBackend)
}

// CameraDevice returns the capture device identifier.
func CameraDevice() string {
	return String(EnvCameraDevice, DefaultCameraDevice)
}

// SampleInterval returns the frame sampling cadence.
func SampleInterval() time.Duration {
	return Duration(EnvSampleInterval, DefaultSampleInterval)
}

// LogLevel returns the configured log level name.
func LogLevel() string {
	return String(EnvLogLevel, DefaultLogLevel)
}
