package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"messenger-service/internal/auth"
)

// Auditor records security-relevant connection decisions.
type Auditor interface {
	Emit(ctx context.Context, level, text, requestID string, userID *int64)
}

// Handler upgrades authenticated requests and hands the connection to the hub.
type Handler struct {
	hub      *Hub
	auth     auth.Authenticator
	audit    Auditor
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHandler constructs a Handler. audit may be nil.
func NewHandler(hub *Hub, authenticator auth.Authenticator, audit Auditor, log zerolog.Logger) *Handler {
	return &Handler{
		hub:   hub,
		auth:  authenticator,
		audit: audit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With().Str("component", "ws_handler").Logger(),
	}
}

// Handle serves GET /ws.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	identity, err := h.auth.Authenticate(ctx, auth.TokenFromRequest(c.Request))
	if err != nil {
		h.emit(ctx, "WARN", "websocket rejected: unauthenticated", c.Request, nil)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	info := NewConnInfo(c.Request, identity.ID, span.SpanContext().TraceID().String())
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.log.Debug().Err(err).Int64("user_id", identity.ID).Msg("upgrade failed")
		return
	}

	_, err = h.hub.Open(ctx, conn, identity, info)
	switch {
	case err == nil:
	case errors.Is(err, ErrConnectionLimit):
		h.emit(ctx, "WARN", "websocket rejected: connection limit exceeded", c.Request, &identity.ID)
	case errors.Is(err, ErrUserNotFound):
		h.emit(ctx, "WARN", "websocket rejected: unknown user", c.Request, &identity.ID)
	case errors.Is(err, ErrHubClosed):
	default:
		h.log.Error().Err(err).Int64("user_id", identity.ID).Msg("open session")
	}
}

func (h *Handler) emit(ctx context.Context, level, text string, r *http.Request, userID *int64) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(ctx, level, text, r.Header.Get("X-Request-Id"), userID)
}
