package ws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
)

// Store is the storage the realtime core writes through.
type Store interface {
	CreateMessage(ctx context.Context, senderID, receiverID int64, content string) (models.Message, error)
	MarkRead(ctx context.Context, senderID, receiverID int64) (int64, error)
	GetUser(ctx context.Context, userID int64) (models.User, error)
	GetOrCreatePresence(ctx context.Context, userID int64) (models.Presence, error)
	SetOnline(ctx context.Context, userID int64, online bool, at time.Time) error
}

// Router applies inbound commands: storage side effects first, then fan-out to the
// affected users' groups.
type Router struct {
	store    Store
	registry *Registry
	groups   *Groups
	maxLen   int
	// senders orders persist+enqueue per sender across that sender's sessions.
	senders keyedMutex
	tracer  trace.Tracer
	log     zerolog.Logger
}

func NewRouter(store Store, registry *Registry, groups *Groups, maxMessageLength int, log zerolog.Logger) *Router {
	return &Router{
		store:    store,
		registry: registry,
		groups:   groups,
		maxLen:   maxMessageLength,
		tracer:   otel.Tracer("messenger-service/ws"),
		log:      log.With().Str("component", "router").Logger(),
	}
}

// Dispatch routes one parsed frame from the given identity.
func (r *Router) Dispatch(ctx context.Context, from models.Identity, cmd Command) error {
	switch c := cmd.(type) {
	case ChatMessageCommand:
		_, err := r.SendMessage(ctx, from, c.ReceiverID, c.Content)
		return err
	case ReadMessagesCommand:
		_, err := r.MarkRead(ctx, from.ID, c.SenderID)
		return err
	case TypingStatusCommand:
		r.Typing(ctx, from.ID, c.ReceiverID, c.IsTyping)
		return nil
	default:
		return fmt.Errorf("%w: unsupported frame %T", ErrValidation, cmd)
	}
}

// SendMessage persists a message and delivers chat_message to the receiver's sessions
// and message_sent to the sender's.
func (r *Router) SendMessage(ctx context.Context, from models.Identity, receiverID int64, content string) (models.Message, error) {
	ctx, span := r.tracer.Start(ctx, "router.chat_message", trace.WithAttributes(
		attribute.Int64("sender_id", from.ID),
		attribute.Int64("receiver_id", receiverID),
	))
	defer span.End()

	if strings.TrimSpace(content) == "" {
		return models.Message{}, r.fail(span, fmt.Errorf("%w: message must not be empty", ErrValidation))
	}
	if r.maxLen > 0 && utf8.RuneCountInString(content) > r.maxLen {
		return models.Message{}, r.fail(span, fmt.Errorf("%w: message longer than %d characters", ErrValidation, r.maxLen))
	}

	if _, err := r.lookupUser(ctx, receiverID); err != nil {
		return models.Message{}, r.fail(span, err)
	}

	unlock := r.senders.Lock(from.ID)
	msg, err := r.store.CreateMessage(context.WithoutCancel(ctx), from.ID, receiverID, content)
	if err != nil {
		unlock()
		return models.Message{}, r.fail(span, fmt.Errorf("%w: create message: %v", ErrStorage, err))
	}

	ts := FormatTimestamp(msg.CreatedAt)
	r.groups.Broadcast(UserGroup(receiverID), ChatMessageEvent{
		Message:        msg.Content,
		SenderID:       from.ID,
		SenderUsername: from.Username,
		MessageID:      msg.ID,
		Timestamp:      ts,
	})
	r.groups.Broadcast(UserGroup(from.ID), MessageSentEvent{
		Message:    msg.Content,
		ReceiverID: receiverID,
		MessageID:  msg.ID,
		Timestamp:  ts,
	})
	unlock()

	span.SetAttributes(attribute.Int64("message_id", msg.ID))
	r.publish(ctx, observability.RoutingMessageCreated, "message.created", map[string]interface{}{
		"message_id":  msg.ID,
		"sender_id":   msg.SenderID,
		"receiver_id": msg.ReceiverID,
		"created_at":  ts,
	})
	return msg, nil
}

// MarkRead flags everything senderID sent to readerID as read and tells the sender's
// sessions. The receipt goes out even when nothing was unread.
func (r *Router) MarkRead(ctx context.Context, readerID, senderID int64) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "router.read_messages", trace.WithAttributes(
		attribute.Int64("reader_id", readerID),
		attribute.Int64("sender_id", senderID),
	))
	defer span.End()

	if _, err := r.lookupUser(ctx, senderID); err != nil {
		return 0, r.fail(span, err)
	}

	n, err := r.store.MarkRead(context.WithoutCancel(ctx), senderID, readerID)
	if err != nil {
		return 0, r.fail(span, fmt.Errorf("%w: mark read: %v", ErrStorage, err))
	}
	span.SetAttributes(attribute.Int64("updated", n))

	r.NotifyRead(readerID, senderID)
	if n > 0 {
		r.publish(ctx, observability.RoutingMessageRead, "message.read", map[string]interface{}{
			"reader_id": readerID,
			"sender_id": senderID,
			"updated":   n,
		})
	}
	return n, nil
}

// NotifyRead delivers messages_read to the sender's sessions.
func (r *Router) NotifyRead(readerID, senderID int64) {
	r.groups.Broadcast(UserGroup(senderID), MessagesReadEvent{ReaderID: readerID})
}

// Typing forwards a typing indicator to an online receiver and reports whether it was
// sent. Indicators for offline users are dropped, never stored.
func (r *Router) Typing(ctx context.Context, fromID, receiverID int64, isTyping bool) bool {
	_, span := r.tracer.Start(ctx, "router.typing_status", trace.WithAttributes(
		attribute.Int64("sender_id", fromID),
		attribute.Int64("receiver_id", receiverID),
	))
	defer span.End()

	if !r.registry.IsOnline(receiverID) {
		observability.IncDeliveryDropped("receiver_offline")
		return false
	}
	return r.groups.Broadcast(UserGroup(receiverID), TypingStatusEvent{UserID: fromID, IsTyping: isTyping}) > 0
}

func (r *Router) lookupUser(ctx context.Context, userID int64) (models.User, error) {
	user, err := r.store.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return models.User{}, fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("%w: get user %d: %v", ErrStorage, userID, err)
	}
	return user, nil
}

func (r *Router) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (r *Router) publish(ctx context.Context, routingKey, name string, payload map[string]interface{}) {
	traceID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	err := observability.PublishEvent(context.WithoutCancel(ctx), routingKey,
		observability.NewEnvelope("messages", name, payload),
		observability.BuildHeaders("", traceID))
	if err != nil {
		r.log.Warn().Err(err).Str("routing_key", routingKey).Msg("publish event")
	}
}
