package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository reads the user directory.
type UserRepository interface {
	GetUser(ctx context.Context, userID int64) (models.User, error)
	ListUsers(ctx context.Context, viewerID int64) ([]models.UserSummary, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID int64) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, username FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// ListUsers returns every user except the viewer, with the number of messages each one
// sent the viewer that are still unread and their stored online flag.
func (r *UserRepo) ListUsers(ctx context.Context, viewerID int64) ([]models.UserSummary, error) {
	query := `SELECT u.id, u.username,
            COALESCE(p.is_online, FALSE) AS is_online,
            (SELECT COUNT(*) FROM messages m
                WHERE m.sender_id = u.id AND m.receiver_id = $1 AND m.is_read = FALSE) AS unread_count
        FROM users u
        LEFT JOIN user_profiles p ON p.user_id = u.id
        WHERE u.id <> $1
        ORDER BY u.username ASC`
	users := []models.UserSummary{}
	err := r.db.SelectContext(ctx, &users, query, viewerID)
	return users, err
}
