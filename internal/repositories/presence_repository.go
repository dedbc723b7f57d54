package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

// PresenceRepository persists the online flag mirrored from the live registry.
type PresenceRepository interface {
	GetOrCreatePresence(ctx context.Context, userID int64) (models.Presence, error)
	SetOnline(ctx context.Context, userID int64, online bool, at time.Time) error
	ResetPresence(ctx context.Context) error
}

// PresenceRepo is a sqlx implementation of PresenceRepository.
type PresenceRepo struct {
	db *sqlx.DB
}

// NewPresenceRepo constructs a PresenceRepo.
func NewPresenceRepo(db *sqlx.DB) *PresenceRepo {
	return &PresenceRepo{db: db}
}

// GetOrCreatePresence returns the user's profile row, creating an offline one if missing.
func (r *PresenceRepo) GetOrCreatePresence(ctx context.Context, userID int64) (models.Presence, error) {
	var p models.Presence
	err := r.db.QueryRowxContext(ctx, `INSERT INTO user_profiles (user_id) VALUES ($1)
        ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
        RETURNING user_id, is_online, last_activity`, userID).StructScan(&p)
	return p, err
}

// SetOnline upserts the online flag and last activity.
func (r *PresenceRepo) SetOnline(ctx context.Context, userID int64, online bool, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO user_profiles (user_id, is_online, last_activity) VALUES ($1, $2, $3)
        ON CONFLICT (user_id) DO UPDATE SET is_online = EXCLUDED.is_online, last_activity = EXCLUDED.last_activity`,
		userID, online, at)
	return err
}

// ResetPresence marks every user offline. Called at startup, when no session is live.
func (r *PresenceRepo) ResetPresence(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `UPDATE user_profiles SET is_online = FALSE WHERE is_online = TRUE`)
	return err
}
