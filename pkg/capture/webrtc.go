package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
)

// WebRTCSource receives a remote camera published through a GStreamer
// webrtcsink signalling server.
type WebRTCSource struct {
	cfg     Config
	logger  *slog.Logger
	decoder h264Decoder

	mu   sync.Mutex
	held *webrtcDevice
}

// NewWebRTCSource creates a source that subscribes to cfg.Producer at the
// signalling URL in cfg.Device.
func NewWebRTCSource(cfg Config, logger *slog.Logger) *WebRTCSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebRTCSource{
		cfg:     cfg,
		logger:  logger.With("component", "capture.webrtc"),
		decoder: newFFmpegDecoder(),
	}
}

// Name returns "webrtc".
func (s *WebRTCSource) Name() string {
	return "webrtc"
}

// Acquire negotiates a receive-only peer connection and waits for the video track.
func (s *WebRTCSource) Acquire(ctx context.Context) (Device, error) {
	s.mu.Lock()
	if s.held != nil {
		s.mu.Unlock()
		return nil, ErrAlreadyAcquired
	}
	s.mu.Unlock()

	timeout := s.cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().AcquireTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d := &webrtcDevice{
		src:        s,
		trackReady: make(chan struct{}),
		stop:       make(chan struct{}),
	}

	if err := d.connect(ctx); err != nil {
		d.Release()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	select {
	case <-d.trackReady:
	case <-ctx.Done():
		d.Release()
		return nil, fmt.Errorf("%w: waiting for video track: %v", ErrDeviceUnavailable, ctx.Err())
	}

	s.mu.Lock()
	if s.held != nil {
		s.mu.Unlock()
		d.Release()
		return nil, ErrAlreadyAcquired
	}
	s.held = d
	s.mu.Unlock()

	s.logger.Info("video track connected", "producer", s.cfg.Producer)
	return d, nil
}

func (s *WebRTCSource) release(d *webrtcDevice) {
	s.mu.Lock()
	if s.held == d {
		s.held = nil
	}
	s.mu.Unlock()
}

// webrtcDevice is one negotiated peer connection.
type webrtcDevice struct {
	src *WebRTCSource

	ws     *websocket.Conn
	wsMu   sync.Mutex
	pc     *webrtc.PeerConnection
	peerID string

	sessMu  sync.Mutex
	session string

	trackOnce  sync.Once
	trackReady chan struct{}

	frameMu sync.RWMutex
	latest  Frame
	seq     uint64

	stop        chan struct{}
	wg          sync.WaitGroup
	releaseOnce sync.Once
}

type signalMessage struct {
	Type      string `json:"type"`
	PeerID    string `json:"peerId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Producers []struct {
		ID   string            `json:"id"`
		Meta map[string]string `json:"meta"`
	} `json:"producers,omitempty"`
	SDP *struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	} `json:"sdp,omitempty"`
	ICE *webrtc.ICECandidateInit `json:"ice,omitempty"`
}

func (d *webrtcDevice) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, d.src.cfg.Device, nil)
	if err != nil {
		return fmt.Errorf("signalling connect: %w", err)
	}
	d.ws = ws

	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
	}

	welcome, err := d.read()
	if err != nil {
		return fmt.Errorf("welcome: %w", err)
	}
	if welcome.Type != "welcome" {
		return fmt.Errorf("expected welcome, got %q", welcome.Type)
	}
	d.peerID = welcome.PeerID

	producer, err := d.findProducer()
	if err != nil {
		return err
	}

	if err := d.newPeerConnection(); err != nil {
		return fmt.Errorf("peer connection: %w", err)
	}

	if err := d.write(signalMessage{Type: "startSession", PeerID: producer}); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	_ = ws.SetReadDeadline(time.Time{})

	d.wg.Add(1)
	go d.signalLoop()

	return nil
}

func (d *webrtcDevice) sessionID() string {
	d.sessMu.Lock()
	defer d.sessMu.Unlock()
	return d.session
}

func (d *webrtcDevice) read() (signalMessage, error) {
	var msg signalMessage
	_, data, err := d.ws.ReadMessage()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decode signalling message: %w", err)
	}
	return msg, nil
}

func (d *webrtcDevice) write(v any) error {
	d.wsMu.Lock()
	defer d.wsMu.Unlock()
	return d.ws.WriteJSON(v)
}

func (d *webrtcDevice) findProducer() (string, error) {
	if err := d.write(signalMessage{Type: "list"}); err != nil {
		return "", fmt.Errorf("list producers: %w", err)
	}
	resp, err := d.read()
	if err != nil {
		return "", fmt.Errorf("list producers: %w", err)
	}

	for _, p := range resp.Producers {
		if p.Meta["name"] == d.src.cfg.Producer {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("producer %q not found in %d producers", d.src.cfg.Producer, len(resp.Producers))
}

func (d *webrtcDevice) newPeerConnection() error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	d.pc = pc

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		d.src.logger.Debug("track received", "codec", track.Codec().MimeType)
		d.wg.Add(1)
		go d.readTrack(track)
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		session := d.sessionID()
		if c == nil || session == "" {
			return
		}
		init := c.ToJSON()
		if err := d.write(signalMessage{Type: "peer", SessionID: session, ICE: &init}); err != nil {
			d.src.logger.Debug("send ice candidate failed", "error", err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		d.src.logger.Debug("peer connection state", "state", state.String())
	})

	return nil
}

func (d *webrtcDevice) signalLoop() {
	defer d.wg.Done()

	for {
		msg, err := d.read()
		if err != nil {
			select {
			case <-d.stop:
			default:
				d.src.logger.Warn("signalling closed", "error", err)
			}
			return
		}

		switch msg.Type {
		case "sessionStarted":
			d.sessMu.Lock()
			d.session = msg.SessionID
			d.sessMu.Unlock()
		case "peer":
			d.handlePeer(msg)
		case "endSession":
			return
		}
	}
}

func (d *webrtcDevice) handlePeer(msg signalMessage) {
	if msg.SDP != nil && msg.SDP.Type == "offer" {
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP.SDP}
		if err := d.pc.SetRemoteDescription(offer); err != nil {
			d.src.logger.Warn("set remote description failed", "error", err)
			return
		}
		answer, err := d.pc.CreateAnswer(nil)
		if err != nil {
			d.src.logger.Warn("create answer failed", "error", err)
			return
		}
		if err := d.pc.SetLocalDescription(answer); err != nil {
			d.src.logger.Warn("set local description failed", "error", err)
			return
		}

		reply := signalMessage{Type: "peer", SessionID: d.sessionID()}
		reply.SDP = &struct {
			Type string `json:"type"`
			SDP  string `json:"sdp"`
		}{Type: answer.Type.String(), SDP: answer.SDP}
		if err := d.write(reply); err != nil {
			d.src.logger.Warn("send answer failed", "error", err)
		}
	}

	if msg.ICE != nil {
		if err := d.pc.AddICECandidate(*msg.ICE); err != nil {
			d.src.logger.Debug("add ice candidate failed", "error", err)
		}
	}
}

// readTrack depacketizes H264 and periodically decodes the buffered access units.
func (d *webrtcDevice) readTrack(track *webrtc.TrackRemote) {
	defer d.wg.Done()

	d.trackOnce.Do(func() { close(d.trackReady) })

	interval := d.src.cfg.DecodeInterval
	if interval <= 0 {
		interval = DefaultConfig().DecodeInterval
	}

	var (
		h264    codecs.H264Packet
		annexB  bytes.Buffer
		lastRun = now()
	)

	for {
		select {
		case <-d.stop:
			return
		default:
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if err := depacketize(pkt, &h264, &annexB); err != nil {
			d.src.logger.Debug("drop rtp packet", "seq", pkt.SequenceNumber, "error", err)
			continue
		}

		if now().Sub(lastRun) < interval {
			continue
		}
		lastRun = now()

		img, err := d.src.decoder.Decode(context.Background(), annexB.Bytes())
		annexB.Reset()
		if err != nil {
			if !errors.Is(err, ErrNotReady) {
				d.src.logger.Debug("decode failed", "error", err)
			}
			continue
		}

		d.frameMu.Lock()
		d.seq++
		d.latest = frameFromImage(img, d.seq)
		d.frameMu.Unlock()
	}
}

// depacketize appends the Annex-B NAL units carried by pkt to out.
// Fragmented units are only appended once their last fragment arrives.
func depacketize(pkt *rtp.Packet, h264 *codecs.H264Packet, out *bytes.Buffer) error {
	nal, err := h264.Unmarshal(pkt.Payload)
	if err != nil {
		return err
	}
	out.Write(nal)
	return nil
}

// Sample returns the latest decoded picture.
func (d *webrtcDevice) Sample() (Frame, error) {
	select {
	case <-d.stop:
		return Frame{}, ErrReleased
	default:
	}

	d.frameMu.RLock()
	defer d.frameMu.RUnlock()

	if d.seq == 0 {
		return Frame{}, ErrNotReady
	}
	return d.latest, nil
}

// Release tears down the peer connection and signalling socket.
func (d *webrtcDevice) Release() {
	d.releaseOnce.Do(func() {
		close(d.stop)
		if d.pc != nil {
			if err := d.pc.Close(); err != nil {
				d.src.logger.Debug("peer connection close failed", "error", err)
			}
		}
		if d.ws != nil {
			_ = d.ws.Close()
		}
		d.wg.Wait()
		d.src.release(d)
	})
}

var _ Source = (*WebRTCSource)(nil)
