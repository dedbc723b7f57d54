package ws

import (
	"encoding/json"
	"time"
)

// EventKind is the "type" discriminator of an outbound frame.
type EventKind string

const (
	KindChatMessage  EventKind = "chat_message"
	KindMessageSent  EventKind = "message_sent"
	KindMessagesRead EventKind = "messages_read"
	KindTypingStatus EventKind = "typing_status"
	KindUserStatus   EventKind = "user_status"
	KindError        EventKind = "error"
)

// Event is an outbound frame. The set of implementations is closed to this package.
type Event interface {
	Kind() EventKind
	sealed()
}

type ChatMessageEvent struct {
	Message        string `json:"message"`
	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	MessageID      int64  `json:"message_id"`
	Timestamp      string `json:"timestamp"`
}

type MessageSentEvent struct {
	Message    string `json:"message"`
	ReceiverID int64  `json:"receiver_id"`
	MessageID  int64  `json:"message_id"`
	Timestamp  string `json:"timestamp"`
}

type MessagesReadEvent struct {
	ReaderID int64 `json:"reader_id"`
}

type TypingStatusEvent struct {
	UserID   int64 `json:"user_id"`
	IsTyping bool  `json:"is_typing"`
}

type UserStatusEvent struct {
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
}

type ErrorEvent struct {
	Error string `json:"error"`
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

func (ChatMessageEvent) Kind() EventKind { return KindChatMessage }
func (MessageSentEvent) Kind() EventKind { return KindMessageSent }
func (MessagesReadEvent) Kind() EventKind { return KindMessagesRead }
func (TypingStatusEvent) Kind() EventKind { return KindTypingStatus }
func (UserStatusEvent) Kind() EventKind { return KindUserStatus }
func (ErrorEvent) Kind() EventKind { return KindError }

func (ChatMessageEvent) sealed() {}
func (MessageSentEvent) sealed() {}
func (MessagesReadEvent) sealed() {}
func (TypingStatusEvent) sealed() {}
func (UserStatusEvent) sealed() {}
func (ErrorEvent) sealed() {}

// Encode serializes an event as a JSON object with its "type" field first.
func Encode(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	kind, err := json.Marshal(e.Kind())
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(body)+len(kind)+9)
	out = append(out, `{"type":`...)
	out = append(out, kind...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}

// FormatTimestamp renders message times on the wire.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
