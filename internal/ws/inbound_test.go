package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		name    string
		frame   string
		want    Command
		wantErr string
	}{
		{"chat message", `{"type":"chat_message","message":"hi","receiver_id":2}`, ChatMessageCommand{ReceiverID: 2, Content: "hi"}, ""},
		{"missing type defaults to chat", `{"message":"hi","receiver_id":2}`, ChatMessageCommand{ReceiverID: 2, Content: "hi"}, ""},
		{"empty content parses", `{"type":"chat_message","message":"","receiver_id":2}`, ChatMessageCommand{ReceiverID: 2}, ""},
		{"read messages", `{"type":"read_messages","sender_id":5}`, ReadMessagesCommand{SenderID: 5}, ""},
		{"typing false", `{"type":"typing_status","receiver_id":3,"is_typing":false}`, TypingStatusCommand{ReceiverID: 3}, ""},
		{"unknown type", `{"type":"wave","receiver_id":3}`, nil, ""},
		{"bad json", `{"type":`, nil, "invalid JSON"},
		{"missing receiver", `{"type":"chat_message","message":"hi"}`, nil, "receiver_id is required"},
		{"missing message", `{"type":"chat_message","receiver_id":2}`, nil, "message is required"},
		{"receiver wrong type", `{"type":"chat_message","message":"hi","receiver_id":"two"}`, nil, "receiver_id must be"},
		{"receiver not positive", `{"type":"chat_message","message":"hi","receiver_id":0}`, nil, "receiver_id is invalid"},
		{"missing sender", `{"type":"read_messages"}`, nil, "sender_id is required"},
		{"missing is_typing", `{"type":"typing_status","receiver_id":3}`, nil, "is_typing is required"},
		{"null frame", `null`, nil, "is required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := ParseCommand([]byte(tc.frame))
			if tc.wantErr != "" {
				require.ErrorIs(t, err, ErrValidation)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, cmd)
		})
	}
}

func TestEncodePutsTypeFirst(t *testing.T) {
	data, err := Encode(UserStatusEvent{UserID: 4, Status: StatusOnline})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"user_status","user_id":4,"status":"online"}`, string(data))

	data, err = Encode(ErrorEvent{Error: "nope"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","error":"nope"}`, string(data))
}
