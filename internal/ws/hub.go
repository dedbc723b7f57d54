package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
)

// Limiter admits connections and inbound frames per identity.
type Limiter interface {
	AdmitConnection(ctx context.Context, userID int64) bool
	Release(ctx context.Context, userID int64)
	AdmitMessage(userID int64) bool
}

type Config struct {
	Session          SessionConfig
	MaxMessageLength int
	// StorageTimeout bounds presence writes made while tearing a session down.
	StorageTimeout time.Duration
}

// Hub owns the live sessions: presence, groups and routing.
type Hub struct {
	store    Store
	limiter  Limiter
	registry *Registry
	groups   *Groups
	router   *Router
	cfg      Config
	log      zerolog.Logger

	// transitions serializes each identity's register/unregister with the presence write
	// and broadcast that follow, so online/offline events keep connection order.
	transitions keyedMutex

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	now func() time.Time
}

// NewHub creates a hub with empty presence and groups.
func NewHub(store Store, limiter Limiter, cfg Config, log zerolog.Logger) *Hub {
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = 5 * time.Second
	}
	log = log.With().Str("component", "hub").Logger()
	registry := NewRegistry()
	groups := NewGroups(log)
	return &Hub{
		store:    store,
		limiter:  limiter,
		registry: registry,
		groups:   groups,
		router:   NewRouter(store, registry, groups, cfg.MaxMessageLength, log),
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

func (h *Hub) Registry() *Registry { return h.registry }
func (h *Hub) Groups() *Groups { return h.groups }
func (h *Hub) Router() *Router { return h.router }

// NotifyRead tells the sender's sessions that readerID read their messages.
func (h *Hub) NotifyRead(readerID, senderID int64) {
	h.router.NotifyRead(readerID, senderID)
}

// IsOnline reports live presence.
func (h *Hub) IsOnline(userID int64) bool {
	return h.registry.IsOnline(userID)
}

// Open admits an upgraded connection and starts its session. On rejection the connection
// is closed with the matching close code and the error says why.
func (h *Hub) Open(ctx context.Context, conn *websocket.Conn, identity models.Identity, info ConnInfo) (*Session, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.reject(conn, info, websocket.CloseGoingAway, "server shutting down")
		return nil, ErrHubClosed
	}
	h.wg.Add(1)
	h.mu.Unlock()

	if !h.limiter.AdmitConnection(ctx, identity.ID) {
		h.reject(conn, info, CloseConnectionLimit, "connection limit exceeded")
		h.wg.Done()
		return nil, ErrConnectionLimit
	}

	s, err := h.admit(ctx, conn, identity, info)
	if err != nil {
		h.wg.Done()
		return nil, err
	}
	observability.IncWSActive()

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		s.Close(websocket.CloseGoingAway, "server shutting down")
		return nil, ErrHubClosed
	}

	observability.IncWSEvent("ws_connect")
	h.publishWSEvent(s, "ws_connect", "")
	s.log.Debug().Msg("session opened")

	s.start()
	return s, nil
}

// admit resolves the user and registers a session. On failure the limiter slot is
// returned before the connection is closed.
func (h *Hub) admit(ctx context.Context, conn *websocket.Conn, identity models.Identity, info ConnInfo) (*Session, error) {
	user, err := h.store.GetUser(ctx, identity.ID)
	if err != nil {
		h.limiter.Release(context.WithoutCancel(ctx), identity.ID)
		if errors.Is(err, ErrUserNotFound) {
			h.reject(conn, info, CloseUnknownUser, "unknown user")
			return nil, fmt.Errorf("user %d: %w", identity.ID, ErrUserNotFound)
		}
		h.reject(conn, info, websocket.CloseInternalServerErr, "registration failed")
		return nil, fmt.Errorf("%w: get user %d: %v", ErrStorage, identity.ID, err)
	}
	if identity.Username == "" {
		identity.Username = user.Username
	}

	s := newSession(h, conn, identity, info, h.cfg.Session, h.log)
	wentOnline, err := h.register(ctx, s)
	if err != nil {
		h.limiter.Release(context.WithoutCancel(ctx), identity.ID)
		s.abort(websocket.CloseInternalServerErr, "registration failed")
		observability.IncWSEvent("ws_rejected")
		h.log.Error().Err(err).Int64("user_id", identity.ID).Msg("session registration failed")
		return nil, err
	}
	if wentOnline {
		h.publishPresence(ctx, identity.ID, true)
	}
	return s, nil
}

// register reports whether the identity came online with this session.
func (h *Hub) register(ctx context.Context, s *Session) (bool, error) {
	id := s.identity.ID
	ctx = context.WithoutCancel(ctx)

	unlock := h.transitions.Lock(id)
	defer unlock()

	h.groups.Join(GroupAllUsers, s)
	h.groups.Join(UserGroup(id), s)
	if !h.registry.Register(id, s) {
		return false, nil
	}

	if err := h.markOnline(ctx, id); err != nil {
		h.groups.LeaveAll(s)
		h.registry.Unregister(id, s)
		return false, err
	}
	h.groups.Broadcast(GroupAllUsers, UserStatusEvent{UserID: id, Status: StatusOnline})
	observability.SetOnlineUsers(h.registry.OnlineCount())
	return true, nil
}

func (h *Hub) markOnline(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.StorageTimeout)
	defer cancel()

	presence, err := h.store.GetOrCreatePresence(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: load presence: %v", ErrStorage, err)
	}
	if err := h.store.SetOnline(ctx, id, true, h.now()); err != nil {
		return fmt.Errorf("%w: set online: %v", ErrStorage, err)
	}
	if !presence.LastActivity.IsZero() {
		h.log.Debug().Int64("user_id", id).Time("last_activity", presence.LastActivity).Msg("user online")
	}
	return nil
}

// release runs once per registered session, from Session.Close.
func (h *Hub) release(s *Session) {
	defer h.wg.Done()

	id := s.identity.ID
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.StorageTimeout)
	defer cancel()

	unlock := h.transitions.Lock(id)
	h.groups.LeaveAll(s)
	wentOffline := h.registry.Unregister(id, s)
	if wentOffline {
		if err := h.store.SetOnline(ctx, id, false, h.now()); err != nil {
			h.log.Error().Err(err).Int64("user_id", id).Msg("persist offline")
		}
		h.groups.Broadcast(GroupAllUsers, UserStatusEvent{UserID: id, Status: StatusOffline})
		observability.SetOnlineUsers(h.registry.OnlineCount())
	}
	unlock()

	h.limiter.Release(ctx, id)
	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect")

	_, reason := s.CloseStatus()
	h.publishWSEvent(s, "ws_disconnect", reason)
	if wentOffline {
		h.publishPresence(ctx, id, false)
	}
	s.log.Debug().Str("reason", reason).Msg("session closed")
}

// Shutdown closes every session with 1001 and waits for their teardown.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	for _, s := range h.groups.Members(GroupAllUsers) {
		go s.Close(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) reject(conn *websocket.Conn, info ConnInfo, code int, reason string) {
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage, closeMessage(code, reason), time.Now().Add(h.cfg.Session.withDefaults().WriteTimeout))
		_ = conn.Close()
	}
	observability.IncWSEvent("ws_rejected")
	h.log.Info().Int64("user_id", info.UserID).Int("code", code).Str("reason", reason).Msg("connection rejected")
	_ = observability.PublishEvent(context.Background(), observability.RoutingWSEvents,
		observability.NewEnvelope("ws_events", "ws_rejected", info.eventPayload("ws_rejected", reason)),
		observability.BuildHeaders(info.RequestID, info.TraceID))
}

func (h *Hub) publishWSEvent(s *Session, event, reason string) {
	if event == "ws_error" {
		observability.IncWSEvent(event)
	}
	_ = observability.PublishEvent(context.Background(), observability.RoutingWSEvents,
		observability.NewEnvelope("ws_events", event, s.info.eventPayload(event, reason)),
		observability.BuildHeaders(s.info.RequestID, s.info.TraceID))
}

func (h *Hub) publishPresence(ctx context.Context, userID int64, online bool) {
	key, name := observability.RoutingPresenceOffline, "presence.offline"
	if online {
		key, name = observability.RoutingPresenceOnline, "presence.online"
	}
	_ = observability.PublishEvent(context.WithoutCancel(ctx), key,
		observability.NewEnvelope("presence", name, map[string]interface{}{
			"user_id":     userID,
			"occurred_at": FormatTimestamp(h.now()),
		}), nil)
}
