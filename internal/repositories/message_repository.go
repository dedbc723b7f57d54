package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

// MessageRepository defines interactions for direct messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, senderID, receiverID int64, content string) (models.Message, error)
	MarkRead(ctx context.Context, senderID, receiverID int64) (int64, error)
	ListHistory(ctx context.Context, userA, userB int64) ([]models.Message, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	UnreadCountFrom(ctx context.Context, senderID, receiverID int64) (int, error)
	ListConversations(ctx context.Context, userID int64) ([]models.Conversation, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message. created_at never goes backwards for a sender, even if
// the database clock does.
func (r *MessageRepo) CreateMessage(ctx context.Context, senderID, receiverID int64, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (sender_id, receiver_id, content, created_at)
        VALUES ($1, $2, $3, GREATEST(
            clock_timestamp(),
            COALESCE((SELECT MAX(created_at) FROM messages WHERE sender_id=$1), '-infinity'::timestamptz) + INTERVAL '1 microsecond'))
        RETURNING id, sender_id, receiver_id, content, is_read, created_at`, senderID, receiverID, content).
		StructScan(&msg)
	return msg, err
}

// MarkRead flags every unread message from sender to receiver as read and returns the
// number of rows changed.
func (r *MessageRepo) MarkRead(ctx context.Context, senderID, receiverID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = TRUE
        WHERE sender_id=$1 AND receiver_id=$2 AND is_read = FALSE`, senderID, receiverID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListHistory returns the messages exchanged between two users in creation order.
func (r *MessageRepo) ListHistory(ctx context.Context, userA, userB int64) ([]models.Message, error) {
	query := `SELECT id, sender_id, receiver_id, content, is_read, created_at
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC, id ASC`
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, query, userA, userB)
	return msgs, err
}

// UnreadCount returns the number of unread messages addressed to the user.
func (r *MessageRepo) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE receiver_id=$1 AND is_read = FALSE`, userID)
	return count, err
}

// UnreadCountFrom returns the number of unread messages from sender to receiver.
func (r *MessageRepo) UnreadCountFrom(ctx context.Context, senderID, receiverID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages
        WHERE sender_id=$1 AND receiver_id=$2 AND is_read = FALSE`, senderID, receiverID)
	return count, err
}

type conversationRow struct {
	Counterpart int64  `db:"counterpart"`
	Username    string `db:"username"`
	UnreadCount int    `db:"unread_count"`
	models.Message
}

// ListConversations returns the latest message per counterpart, newest first.
func (r *MessageRepo) ListConversations(ctx context.Context, userID int64) ([]models.Conversation, error) {
	query := `SELECT c.counterpart, u.username, c.id, c.sender_id, c.receiver_id, c.content, c.is_read, c.created_at,
            (SELECT COUNT(*) FROM messages x
                WHERE x.sender_id = c.counterpart AND x.receiver_id = $1 AND x.is_read = FALSE) AS unread_count
        FROM (
            SELECT DISTINCT ON (counterpart) counterpart, id, sender_id, receiver_id, content, is_read, created_at
            FROM (
                SELECT m.*, CASE WHEN m.sender_id = $1 THEN m.receiver_id ELSE m.sender_id END AS counterpart
                FROM messages m
                WHERE m.sender_id = $1 OR m.receiver_id = $1
            ) pairs
            ORDER BY counterpart, created_at DESC, id DESC
        ) c
        JOIN users u ON u.id = c.counterpart
        ORDER BY c.created_at DESC, c.id DESC`
	var rows []conversationRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	result := make([]models.Conversation, 0, len(rows))
	for _, row := range rows {
		result = append(result, models.Conversation{
			UserID:      row.Counterpart,
			Username:    row.Username,
			LastMessage: row.Message,
			UnreadCount: row.UnreadCount,
		})
	}
	return result, nil
}
