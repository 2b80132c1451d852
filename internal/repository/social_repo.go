package repository

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"
)

// SocialRepository exposes the friendship and block relations owned by
// the external friend/block services. The coordination layer only ever
// reads them.
type SocialRepository interface {
	AreFriends(ctx context.Context, userID, otherID int) (bool, error)
	IsBlockedBidirectional(ctx context.Context, userID, otherID int) (bool, error)
}

type socialRepository struct {
	db     *sql.DB
	logger *zerolog.Logger
}

func NewSocialRepository(db *sql.DB, logger *zerolog.Logger) SocialRepository {
	return &socialRepository{db: db, logger: logger}
}

func (r *socialRepository) AreFriends(ctx context.Context, userID, otherID int) (bool, error) {
	query := `
		SELECT COUNT(1) FROM friendships
		WHERE ((user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?))
		AND status = 'accepted'
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID, otherID, otherID, userID).Scan(&count)
	if err != nil {
		r.logger.Error().Err(err).Int("user_id", userID).Int("other_id", otherID).Msg("Failed to query friendship")
		return false, err
	}
	return count > 0, nil
}

func (r *socialRepository) IsBlockedBidirectional(ctx context.Context, userID, otherID int) (bool, error) {
	query := `
		SELECT COUNT(1) FROM blocks
		WHERE (blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID, otherID, otherID, userID).Scan(&count)
	if err != nil {
		r.logger.Error().Err(err).Int("user_id", userID).Int("other_id", otherID).Msg("Failed to query blocks")
		return false, err
	}
	return count > 0, nil
}
