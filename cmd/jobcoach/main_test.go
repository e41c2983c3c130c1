package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-jobcoach/pkg/analysisd"
	"github.com/teslashibe/go-jobcoach/pkg/classify"
)

// syncBuffer is written by the session loop and the command goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out := &syncBuffer{}
	cmd := newRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))

	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func fakeBackend(t *testing.T) string {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/rag/recommend", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"recommendations": []map[string]string{
				{"title": "Backend Engineer", "description": "Profile: " + req["profile"]},
			},
		})
	})
	mux.HandleFunc("/resume/summarize", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"summary":"Go engineer, 5 years"}`))
	})
	mux.HandleFunc("/tts/generate_questions_for_job", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"questions":["Why Go?","Describe a race you fixed."]}`))
	})
	mux.HandleFunc("/tts/", func(w http.ResponseWriter, r *http.Request) {
		i := strings.TrimPrefix(r.URL.Path, "/tts/")
		json.NewEncoder(w).Encode(map[string]string{
			"question_text": "q" + i,
			"audio_file":    "/static/question_" + i + ".mp3",
		})
	})
	mux.HandleFunc("/static/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestRootHelp(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Run a live interview confidence analysis session")
	assert.NotContains(t, out, "posture")
}

func TestRecommendCommand(t *testing.T) {
	url := fakeBackend(t)

	out, err := run(t, "recommend", "--backend-url", url, "--profile", "Go developer")
	require.NoError(t, err)
	assert.Contains(t, out, "1. Backend Engineer")
	assert.Contains(t, out, "Profile: Go developer")

	out, err = run(t, "recommend", "--backend-url", url, "--profile", "long text", "--summarize")
	require.NoError(t, err)
	assert.Contains(t, out, "Summary: Go engineer, 5 years")
	assert.Contains(t, out, "Profile: Go engineer, 5 years")
}

func TestRecommendCommand_Flags(t *testing.T) {
	_, err := run(t, "recommend")
	assert.Error(t, err)

	_, err = run(t, "recommend", "--profile", "x", "--resume", "cv.pdf")
	assert.Error(t, err)

	_, err = run(t, "recommend", "--resume", "cv.txt")
	assert.Error(t, err)
}

func TestQuestionsCommand(t *testing.T) {
	url := fakeBackend(t)
	dir := t.TempDir()

	out, err := run(t, "questions", "--backend-url", url, "--job", "Go backend", "--speak", "--out", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1. Why Go?")
	assert.Contains(t, out, "2. Describe a race you fixed.")

	for _, name := range []string{"question_0.mp3", "question_1.mp3"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, "mp3", string(data))
	}

	_, err = run(t, "questions")
	assert.Error(t, err)
}

func TestInterviewCommand(t *testing.T) {
	srv, err := analysisd.New(classify.NewMock("confident"))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx, ln)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	endpoint := "ws://" + ln.Addr().String() + "/ws/analyze"
	out, err := run(t, "interview", "--backend", "mock", "--endpoint", endpoint,
		"--interval", "20ms", "--duration", "400ms")
	require.NoError(t, err)

	assert.Contains(t, out, "Session ")
	assert.Contains(t, out, "confident")
	assert.Contains(t, out, "Stopped:")
}

func TestInterviewCommand_ChannelUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = run(t, "interview", "--backend", "mock", "--endpoint", "ws://"+addr+"/ws/analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start session")
}

func TestServeCommand_BadClassifier(t *testing.T) {
	_, err := run(t, "serve", "--classifier", "svm", "--addr", "127.0.0.1:0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load classifier")

	_, err = run(t, "serve", "--classifier", "vision", "--vision-api-key", "", "--addr", "127.0.0.1:0")
	require.ErrorIs(t, err, classify.ErrNoAPIKey)
}
