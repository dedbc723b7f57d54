package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Command is a parsed inbound frame.
type Command interface {
	frameType() string
}

type ChatMessageCommand struct {
	ReceiverID int64
	Content    string
}

type ReadMessagesCommand struct {
	SenderID int64
}

type TypingStatusCommand struct {
	ReceiverID int64
	IsTyping   bool
}

func (ChatMessageCommand) frameType() string { return string(KindChatMessage) }
func (ReadMessagesCommand) frameType() string { return "read_messages" }
func (TypingStatusCommand) frameType() string { return string(KindTypingStatus) }

type frameHeader struct {
	Type *string `json:"type"`
}

type chatMessageFrame struct {
	Message    *string `json:"message" validate:"required"`
	ReceiverID *int64  `json:"receiver_id" validate:"required,gt=0"`
}

type readMessagesFrame struct {
	SenderID *int64 `json:"sender_id" validate:"required,gt=0"`
}

type typingStatusFrame struct {
	ReceiverID *int64 `json:"receiver_id" validate:"required,gt=0"`
	IsTyping   *bool  `json:"is_typing" validate:"required"`
}

// ParseCommand decodes one inbound text frame. A frame without "type" is a chat message.
// Unknown types return a nil Command and no error.
func ParseCommand(data []byte) (Command, error) {
	var header frameHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON", ErrValidation)
	}

	frameType := string(KindChatMessage)
	if header.Type != nil {
		frameType = *header.Type
	}

	switch frameType {
	case string(KindChatMessage):
		var f chatMessageFrame
		if err := decodeFrame(data, &f); err != nil {
			return nil, err
		}
		return ChatMessageCommand{ReceiverID: *f.ReceiverID, Content: *f.Message}, nil
	case "read_messages":
		var f readMessagesFrame
		if err := decodeFrame(data, &f); err != nil {
			return nil, err
		}
		return ReadMessagesCommand{SenderID: *f.SenderID}, nil
	case string(KindTypingStatus):
		var f typingStatusFrame
		if err := decodeFrame(data, &f); err != nil {
			return nil, err
		}
		return TypingStatusCommand{ReceiverID: *f.ReceiverID, IsTyping: *f.IsTyping}, nil
	default:
		return nil, nil
	}
}

func decodeFrame(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: %s must be %s", ErrValidation, typeErr.Field, typeErr.Type)
		}
		return fmt.Errorf("%w: invalid JSON", ErrValidation)
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			if fe.Tag() == "required" {
				return fmt.Errorf("%w: %s is required", ErrValidation, fe.Field())
			}
			return fmt.Errorf("%w: %s is invalid", ErrValidation, fe.Field())
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
