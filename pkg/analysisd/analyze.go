package analysisd

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/teslashibe/go-jobcoach/pkg/classify"
	"github.com/teslashibe/go-jobcoach/pkg/hub"
)

// ErrBadFrame is reported for a message that does not carry a frame.
var ErrBadFrame = errors.New("analysisd: bad frame")

type labelReply struct {
	Label string `json:"label"`
}

type errorReply struct {
	Error string `json:"error"`
}

// handleAnalyze serves one analysis connection: read a frame, classify it,
// reply with the label. Replies go out in the order frames arrived.
func (s *Server) handleAnalyze(c *websocket.Conn) {
	connID := uuid.NewString()
	log := s.logger.With("conn_id", connID)

	if s.classifier == nil {
		log.Warn("no classifier loaded, closing analysis connection")
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "no model loaded")
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return
	}

	s.connections.Add(1)
	s.active.Add(1)
	_ = s.labels.Publish(hub.NewConnectionEvent(connID, true))
	log.Info("analysis connection opened", "remote", c.RemoteAddr().String())

	defer func() {
		s.active.Add(-1)
		_ = s.labels.Publish(hub.NewConnectionEvent(connID, false))
		log.Info("analysis connection closed")
	}()

	c.SetReadLimit(s.config.ReadLimit)

	var seq uint64
	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("analysis read ended", "error", err)
			}
			return
		}

		frame, err := decodeFrame(mt, data)
		if err != nil {
			s.failures.Add(1)
			log.Debug("dropping message", "error", err)
			if werr := c.WriteJSON(errorReply{Error: err.Error()}); werr != nil {
				return
			}
			continue
		}
		s.frames.Add(1)

		label, err := s.classify(frame)
		if err != nil {
			s.failures.Add(1)
			log.Warn("classification failed", "error", err)
			if werr := c.WriteJSON(errorReply{Error: err.Error()}); werr != nil {
				return
			}
			continue
		}

		seq++
		s.countLabel(label)
		if err := c.WriteJSON(labelReply{Label: label}); err != nil {
			log.Debug("write label failed", "error", err)
			return
		}
		_ = s.labels.Publish(hub.NewLabelEvent(connID, label, seq))
	}
}

func (s *Server) classify(frame []byte) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ClassifyTimeout)
	defer cancel()
	return s.classifier.Classify(ctx, frame)
}

// decodeFrame extracts JPEG bytes from a text (base64, optionally a data
// URL) or binary message.
func decodeFrame(messageType int, data []byte) ([]byte, error) {
	switch messageType {
	case websocket.BinaryMessage:
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: %v", ErrBadFrame, classify.ErrEmptyFrame)
		}
		return data, nil

	case websocket.TextMessage:
		text := strings.TrimSpace(string(data))
		if i := strings.Index(text, ";base64,"); i >= 0 && strings.HasPrefix(text, "data:") {
			text = text[i+len(";base64,"):]
		}
		if text == "" {
			return nil, fmt.Errorf("%w: %v", ErrBadFrame, classify.ErrEmptyFrame)
		}
		frame, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
		}
		return frame, nil

	default:
		return nil, fmt.Errorf("%w: unsupported message type %d", ErrBadFrame, messageType)
	}
}
