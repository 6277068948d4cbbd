// Package storage persists what outlives a process: user profiles and block lists,
// the room audit trail, and the Redis safety-net snapshots of live state.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pairup/backend/internal/config"
	"pairup/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ProfileProvider resolves the public profile and block list of a linked account.
type ProfileProvider interface {
	GetProfile(userID string) (*models.ProfileSummary, error)
	GetBlockedIDs(userID string) ([]string, error)
}

type Storage interface {
	ProfileProvider

	SaveRoomHistory(history *models.RoomHistory) error
	CloseRoomHistory(roomID string) error
	CloseActiveRoomHistories() (int64, error)
	GetActiveRoomHistories() ([]models.RoomHistory, error)

	SavePresence(rec models.PresenceRecord) error
	TouchPresence(connID string) error
	DeletePresence(connID string) error
	SaveProposal(p *models.MatchProposal) error
	DeleteProposal(proposalID string) error
	SaveRoom(room *models.Room) error
	DeleteRoom(roomID string) error
	ClearSnapshots() (int, error)

	PublishEvent(event models.Event) error
}

type Service struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Ctx    context.Context
	logger *slog.Logger
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		DB:     db,
		Redis:  rdb,
		Ctx:    context.Background(),
		logger: logger.With("component", "storage"),
	}
}

// requestCtx bounds one storage round trip.
func (s *Service) requestCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.Ctx, config.StorageRequestTimeout)
}

// NewPostgres opens the database and migrates the tables this service owns.
func NewPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("error opening postgres: %w", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.RoomHistory{}); err != nil {
		return nil, fmt.Errorf("error running migrations: %w", err)
	}
	return db, nil
}

// NewRedisClient parses redisURL and pings the server before returning.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error pinging redis: %w", err)
	}
	return client, nil
}
