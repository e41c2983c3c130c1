package analysisd

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-jobcoach/pkg/analysis"
	"github.com/teslashibe/go-jobcoach/pkg/capture"
	"github.com/teslashibe/go-jobcoach/pkg/classify"
	"github.com/teslashibe/go-jobcoach/pkg/session"
)

// start serves s on a loopback port and returns its ws:// base URL.
func start(t *testing.T, s *Server) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("server did not shut down")
		}
	})

	require.Eventually(t, s.Hub().IsRunning, 2*time.Second, 5*time.Millisecond)
	return "ws://" + ln.Addr().String()
}

func dial(t *testing.T, url string) *gorilla.Conn {
	t.Helper()
	ws, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	return ws
}

func readReply(t *testing.T, ws *gorilla.Conn) map[string]string {
	t.Helper()
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var reply map[string]string
	require.NoError(t, json.Unmarshal(data, &reply))
	return reply
}

func TestAnalyze_Base64AndBinary(t *testing.T) {
	s, err := New(classify.NewMock("confident", "unconfident"))
	require.NoError(t, err)
	base := start(t, s)

	ws := dial(t, base+"/ws/analyze")
	frame := []byte{0xFF, 0xD8, 0xFF, 0xD9}

	require.NoError(t, ws.WriteMessage(gorilla.TextMessage, []byte(base64.StdEncoding.EncodeToString(frame))))
	assert.Equal(t, "confident", readReply(t, ws)["label"])

	require.NoError(t, ws.WriteMessage(gorilla.BinaryMessage, frame))
	assert.Equal(t, "unconfident", readReply(t, ws)["label"])

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame)
	require.NoError(t, ws.WriteMessage(gorilla.TextMessage, []byte(dataURL)))
	assert.Equal(t, "confident", readReply(t, ws)["label"])

	stats := s.Stats()
	assert.Equal(t, uint64(3), stats.Frames)
	assert.Equal(t, uint64(2), stats.Labels["confident"])
	assert.Equal(t, uint64(1), stats.Labels["unconfident"])
	assert.Equal(t, "mock", stats.Classifier)
}

func TestAnalyze_BadFrameKeepsConnection(t *testing.T) {
	s, err := New(classify.NewMock("confident"))
	require.NoError(t, err)
	base := start(t, s)

	ws := dial(t, base+"/ws/analyze")

	require.NoError(t, ws.WriteMessage(gorilla.TextMessage, []byte("%%% not base64")))
	reply := readReply(t, ws)
	assert.Empty(t, reply["label"])
	assert.NotEmpty(t, reply["error"])

	require.NoError(t, ws.WriteMessage(gorilla.BinaryMessage, []byte{1, 2, 3}))
	assert.Equal(t, "confident", readReply(t, ws)["label"])
	assert.Equal(t, uint64(1), s.Stats().Failures)
}

func TestAnalyze_NoClassifierClosesSocket(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	base := start(t, s)

	ws := dial(t, base+"/ws/analyze")
	_, _, err = ws.ReadMessage()
	require.Error(t, err)

	var closeErr *gorilla.CloseError
	if assert.ErrorAs(t, err, &closeErr) {
		assert.Equal(t, gorilla.CloseInternalServerErr, closeErr.Code)
	}
	assert.Zero(t, s.Stats().Connections)
}

func TestAnalyze_LabelsBroadcast(t *testing.T) {
	s, err := New(classify.NewMock("unconfident"))
	require.NoError(t, err)
	base := start(t, s)

	watcher := dial(t, base+"/ws/labels")
	require.Eventually(t, func() bool { return s.Hub().WatcherCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	ws := dial(t, base+"/ws/analyze")
	require.NoError(t, ws.WriteMessage(gorilla.BinaryMessage, []byte{0xFF}))
	assert.Equal(t, "unconfident", readReply(t, ws)["label"])

	// First the connection event, then the label
	for {
		_, data, err := watcher.ReadMessage()
		require.NoError(t, err)
		var ev map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &ev))
		if ev["type"] == "label" {
			assert.Equal(t, "unconfident", ev["label"])
			break
		}
	}
}

func TestAPI_HealthAndStats(t *testing.T) {
	s, err := New(classify.NewMock())
	require.NoError(t, err)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"status":"ok"`)

	resp, err = s.App().Test(httptest.NewRequest("GET", "/api/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"total_connections":0`)

	empty, err := New(nil)
	require.NoError(t, err)
	resp, err = empty.App().Test(httptest.NewRequest("GET", "/api/health", nil))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"status":"no_model"`)
}

func TestAPI_WebsocketRequiresUpgrade(t *testing.T) {
	s, err := New(classify.NewMock())
	require.NoError(t, err)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/ws/analyze", nil))
	require.NoError(t, err)
	assert.Equal(t, 426, resp.StatusCode)
}

func TestDecodeFrame(t *testing.T) {
	frame, err := decodeFrame(gorilla.TextMessage, []byte(" /9j/ "))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, frame)

	_, err = decodeFrame(gorilla.TextMessage, []byte(""))
	assert.ErrorIs(t, err, ErrBadFrame)

	_, err = decodeFrame(gorilla.BinaryMessage, nil)
	assert.ErrorIs(t, err, ErrBadFrame)

	_, err = decodeFrame(gorilla.PingMessage, []byte{1})
	assert.ErrorIs(t, err, ErrBadFrame)
}

func TestConfig_Validate(t *testing.T) {
	_, err := New(nil, WithAddr(""))
	assert.Error(t, err)

	_, err = New(nil, WithClassifyTimeout(0))
	assert.Error(t, err)
}

// A full session against the real server: mock camera, websocket channel,
// mock classifier.
func TestSessionEndToEnd(t *testing.T) {
	s, err := New(classify.NewMock("confident", "unconfident"))
	require.NoError(t, err)
	base := start(t, s)

	labels := make(chan string, 64)
	source := capture.NewMockSource(capture.DefaultConfig(), nil)

	sess, err := session.New(source, analysis.NewDialer(),
		session.WithEndpoint(base+"/ws/analyze"),
		session.WithInterval(20*time.Millisecond),
		session.WithOnResult(func(r analysis.Result) {
			select {
			case labels <- r.Label:
			default:
			}
		}),
	)
	require.NoError(t, err)
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sess.Start(ctx))

	seen := map[string]bool{}
	deadline := time.After(3 * time.Second)
	for len(seen) < 2 {
		select {
		case l := <-labels:
			seen[l] = true
		case <-deadline:
			t.Fatalf("saw only %v", seen)
		}
	}

	latest, ok := sess.Latest()
	assert.True(t, ok)
	assert.Contains(t, []string{"confident", "unconfident"}, latest.Label)

	sess.Stop()
	assert.Equal(t, session.Stopped, sess.State())
	assert.False(t, source.Held())
	require.Eventually(t, func() bool { return s.Stats().Active == 0 }, 2*time.Second, 5*time.Millisecond)
}
