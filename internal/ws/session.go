package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
)

// SessionConfig tunes per-connection buffers and timeouts.
type SessionConfig struct {
	SendQueueSize int
	WriteTimeout  time.Duration
	PongTimeout   time.Duration
	MaxFrameBytes int64
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 64
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = 64 << 10
	}
	return c
}

// Session is one live websocket connection of an identity.
type Session struct {
	identity models.Identity
	info     ConnInfo
	conn     *websocket.Conn
	hub      *Hub
	cfg      SessionConfig
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	send chan []byte
	done chan struct{}

	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

func newSession(hub *Hub, conn *websocket.Conn, identity models.Identity, info ConnInfo, cfg SessionConfig, log zerolog.Logger) *Session {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		identity: identity,
		info:     info,
		conn:     conn,
		hub:      hub,
		cfg:      cfg,
		log: log.With().
			Str("conn_id", info.ConnID).
			Int64("user_id", identity.ID).
			Logger(),
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, cfg.SendQueueSize),
		done:   make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.info.ConnID }
func (s *Session) Identity() models.Identity { return s.identity }
func (s *Session) Done() <-chan struct{} { return s.done }
func (s *Session) Context() context.Context { return s.ctx }

// CloseStatus returns the code and reason the session was closed with. Only meaningful
// once Done is closed.
func (s *Session) CloseStatus() (int, string) {
	<-s.done
	return s.closeCode, s.closeReason
}

// Deliver serializes e and queues it for this session only.
func (s *Session) Deliver(e Event) bool {
	payload, err := Encode(e)
	if err != nil {
		s.log.Error().Err(err).Str("event", string(e.Kind())).Msg("encode event")
		return false
	}
	if !s.enqueue(payload) {
		return false
	}
	observability.AddDeliveries(string(e.Kind()), 1)
	return true
}

// enqueue never blocks. A full queue means the client stopped reading; the session is
// closed and the frame dropped.
func (s *Session) enqueue(payload []byte) bool {
	select {
	case <-s.done:
		observability.IncDeliveryDropped("closed")
		return false
	default:
	}

	select {
	case s.send <- payload:
		return true
	default:
		observability.IncDeliveryDropped("queue_full")
		s.log.Warn().Int("queue", cap(s.send)).Msg("send queue full, closing session")
		go s.Close(websocket.CloseTryAgainLater, "send queue full")
		return false
	}
}

// Close tears the session down once: pending frames are abandoned, the close frame is
// sent, and the hub drops the session from presence and groups.
func (s *Session) Close(code int, reason string) {
	s.shutdown(code, reason, true)
}

// abort closes a session the hub never finished registering.
func (s *Session) abort(code int, reason string) {
	s.shutdown(code, reason, false)
}

func (s *Session) shutdown(code int, reason string, teardown bool) {
	s.closeOnce.Do(func() {
		s.closeCode = code
		s.closeReason = reason
		close(s.done)
		s.cancel()

		if s.conn != nil {
			_ = s.conn.WriteControl(websocket.CloseMessage, closeMessage(code, reason), time.Now().Add(s.cfg.WriteTimeout))
			_ = s.conn.Close()
		}
		if teardown && s.hub != nil {
			s.hub.release(s)
		}
	})
}

func (s *Session) start() {
	go s.writePump()
	go s.readPump()
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PongTimeout * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.closeOnError("write", err, websocket.CloseNormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				s.closeOnError("ping", err, websocket.CloseNormalClosure, "ping failed")
				return
			}
		}
	}
}

func (s *Session) readPump() {
	s.conn.SetReadLimit(s.cfg.MaxFrameBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.closeAfterRead(err)
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		if msgType != websocket.TextMessage {
			observability.IncInboundFrame("binary", "ignored")
			continue
		}
		s.handleInbound(data)
	}
}

func (s *Session) closeAfterRead(err error) {
	select {
	case <-s.done:
		return
	default:
	}

	var closeErr *websocket.CloseError
	switch {
	case errors.As(err, &closeErr) && (closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway):
		s.Close(websocket.CloseNormalClosure, "")
	case errors.Is(err, websocket.ErrReadLimit):
		s.closeOnError("read", err, websocket.CloseMessageTooBig, "frame too large")
	default:
		s.closeOnError("read", err, websocket.CloseNormalClosure, "read failed")
	}
}

func (s *Session) closeOnError(op string, err error, code int, reason string) {
	select {
	case <-s.done:
		return
	default:
	}
	s.log.Debug().Err(err).Str("op", op).Msg("websocket error")
	if s.hub != nil {
		s.hub.publishWSEvent(s, "ws_error", err.Error())
	}
	s.Close(code, reason)
}

func (s *Session) handleInbound(data []byte) {
	cmd, err := ParseCommand(data)
	if err != nil {
		observability.IncInboundFrame("invalid", "rejected")
		s.Deliver(ErrorEvent{Error: publicError(err)})
		return
	}
	if cmd == nil {
		observability.IncInboundFrame("unknown", "ignored")
		return
	}

	frameType := cmd.frameType()
	if !s.hub.limiter.AdmitMessage(s.identity.ID) {
		observability.IncInboundFrame(frameType, "rate_limited")
		s.Deliver(ErrorEvent{Error: "rate limit exceeded"})
		return
	}

	if err := s.hub.router.Dispatch(s.ctx, s.identity, cmd); err != nil {
		observability.IncInboundFrame(frameType, "error")
		if !errors.Is(err, ErrValidation) && !errors.Is(err, ErrUserNotFound) {
			s.log.Error().Err(err).Str("type", frameType).Msg("dispatch failed")
		}
		s.Deliver(ErrorEvent{Error: publicError(err)})
		return
	}
	observability.IncInboundFrame(frameType, "ok")
}

// closeMessage builds a close frame payload. Control frames carry at most 125 bytes.
func closeMessage(code int, reason string) []byte {
	if len(reason) > 123 {
		reason = reason[:123]
	}
	return websocket.FormatCloseMessage(code, reason)
}
