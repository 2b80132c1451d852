package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/chatrtc/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	presenceKeyPrefix = "presence:"

	// Snapshots only carry last-seen information across restarts and
	// disconnects; a month is plenty before "last seen" stops being
	// meaningful.
	presenceSnapshotTTL = 30 * 24 * time.Hour
)

// PresenceRepository persists last-known presence snapshots. The live
// state is owned by the presence tracker in memory; this store only
// backs lastSeenAt/status across disconnects and process restarts.
type PresenceRepository interface {
	Save(ctx context.Context, record *models.PresenceRecord) error
	// Load returns (nil, nil) when no snapshot exists.
	Load(ctx context.Context, userID int) (*models.PresenceRecord, error)
}

type presenceRepository struct {
	rdb    *redis.Client
	logger *zerolog.Logger
}

func NewPresenceRepository(rdb *redis.Client, logger *zerolog.Logger) PresenceRepository {
	return &presenceRepository{rdb: rdb, logger: logger}
}

func (r *presenceRepository) Save(ctx context.Context, record *models.PresenceRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	key := presenceKeyPrefix + strconv.Itoa(record.UserID)
	if err := r.rdb.Set(ctx, key, data, presenceSnapshotTTL).Err(); err != nil {
		r.logger.Error().Err(err).Int("user_id", record.UserID).Msg("Failed to save presence snapshot")
		return err
	}
	return nil
}

func (r *presenceRepository) Load(ctx context.Context, userID int) (*models.PresenceRecord, error) {
	key := presenceKeyPrefix + strconv.Itoa(userID)
	data, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.logger.Error().Err(err).Int("user_id", userID).Msg("Failed to load presence snapshot")
		return nil, err
	}

	var record models.PresenceRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
