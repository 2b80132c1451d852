package repository

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"
)

type VisibilityRepository interface {
	Viewers(ctx context.Context, ownerID int) ([]int, error)
	Replace(ctx context.Context, ownerID int, viewers []int) error
}

type visibilityRepository struct {
	db     *sql.DB
	logger *zerolog.Logger
}

func NewVisibilityRepository(db *sql.DB, logger *zerolog.Logger) VisibilityRepository {
	return &visibilityRepository{db: db, logger: logger}
}

func (r *visibilityRepository) Viewers(ctx context.Context, ownerID int) ([]int, error) {
	query := `SELECT viewer_id FROM visibility_list WHERE owner_id = ?`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		r.logger.Error().Err(err).Int("owner_id", ownerID).Msg("Failed to load visibility list")
		return nil, err
	}
	defer rows.Close()

	var viewers []int
	for rows.Next() {
		var viewerID int
		if err := rows.Scan(&viewerID); err != nil {
			r.logger.Error().Err(err).Int("owner_id", ownerID).Msg("Failed to scan visibility row")
			continue
		}
		viewers = append(viewers, viewerID)
	}
	return viewers, rows.Err()
}

func (r *visibilityRepository) Replace(ctx context.Context, ownerID int, viewers []int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM visibility_list WHERE owner_id = ?`, ownerID); err != nil {
		r.logger.Error().Err(err).Int("owner_id", ownerID).Msg("Failed to clear visibility list")
		return err
	}
	for _, viewerID := range viewers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO visibility_list (owner_id, viewer_id) VALUES (?, ?)`,
			ownerID, viewerID,
		); err != nil {
			r.logger.Error().Err(err).Int("owner_id", ownerID).Int("viewer_id", viewerID).Msg("Failed to insert visibility row")
			return err
		}
	}
	return tx.Commit()
}
