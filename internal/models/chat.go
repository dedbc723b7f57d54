package models

import "time"

// User is a row of the user directory owned by the auth collaborator.
type User struct {
	ID       int64  `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
}

// Identity is the authenticated principal bound to a connection.
type Identity struct {
	ID       int64
	Username string
}

// Presence mirrors a user's online state in storage.
type Presence struct {
	UserID       int64     `db:"user_id" json:"user_id"`
	IsOnline     bool      `db:"is_online" json:"is_online"`
	LastActivity time.Time `db:"last_activity" json:"last_activity"`
}

// UserSummary is a user listing row as seen by the requesting user.
type UserSummary struct {
	ID          int64  `db:"id" json:"id"`
	Username    string `db:"username" json:"username"`
	UnreadCount int    `db:"unread_count" json:"unread_count"`
	IsOnline    bool   `db:"is_online" json:"is_online"`
}

// Conversation summarizes the exchange with one counterpart.
type Conversation struct {
	UserID      int64   `json:"user_id"`
	Username    string  `json:"username"`
	LastMessage Message `json:"last_message"`
	UnreadCount int     `json:"unread_count"`
}
