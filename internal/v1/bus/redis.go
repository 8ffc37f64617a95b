// Package bus publishes room lifecycle announcements to Redis for external
// consumers (lobby dashboards, ops tooling). It is strictly optional: a nil
// *Service no-ops every method, and a tripped circuit breaker degrades to
// dropping announcements rather than failing the caller. Core coordination
// never depends on it.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/thaasbai/coordinator/internal/v1/logging"
	"go.uber.org/zap"
)

// eventsChannel receives every lifecycle announcement.
const eventsChannel = "thaasbai:events"

// roomsKeyPrefix is the per-game-type set mirroring active room codes.
const roomsKeyPrefix = "thaasbai:rooms:"

// Announcement is the wire shape published to the events channel.
type Announcement struct {
	Kind     string    `json:"kind"`
	GameType string    `json:"gameType"`
	RoomCode string    `json:"roomCode"`
	At       time.Time `json:"at"`
}

// Service handles all interaction with Redis.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// Client returns the underlying Redis client, for the limiter store.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService connects to Redis and verifies the connection immediately.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logging.Warn(context.Background(), "redis circuit breaker state changed",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}

	logging.Info(context.Background(), "connected to Redis announce bus", zap.String("addr", addr))
	return &Service{client: rdb, cb: gobreaker.NewCircuitBreaker(st)}, nil
}

// RoomOpened announces a new room and mirrors its code into the active set.
func (s *Service) RoomOpened(ctx context.Context, gameType, code string) {
	s.publish(ctx, "room_opened", gameType, code)
	s.setOp(ctx, gameType, code, true)
}

// RoomClosed announces a destroyed room and drops its code from the set.
func (s *Service) RoomClosed(ctx context.Context, gameType, code string) {
	s.publish(ctx, "room_closed", gameType, code)
	s.setOp(ctx, gameType, code, false)
}

// GameStarted announces a room moving to playing.
func (s *Service) GameStarted(ctx context.Context, gameType, code string) {
	s.publish(ctx, "game_started", gameType, code)
}

// MatchMade announces a room synthesized by the matchmaker.
func (s *Service) MatchMade(ctx context.Context, gameType, code string) {
	s.publish(ctx, "match_made", gameType, code)
	s.setOp(ctx, gameType, code, true)
}

func (s *Service) publish(ctx context.Context, kind, gameType, code string) {
	if s == nil || s.client == nil {
		return
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		data, err := json.Marshal(Announcement{
			Kind:     kind,
			GameType: gameType,
			RoomCode: code,
			At:       time.Now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal announcement: %w", err)
		}
		return nil, s.client.Publish(ctx, eventsChannel, data).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			logging.Warn(ctx, "redis circuit breaker open, dropping announcement",
				zap.String("kind", kind), zap.String("room_code", code))
			return
		}
		logging.Error(ctx, "redis publish failed",
			zap.String("kind", kind), zap.String("room_code", code), zap.Error(err))
	}
}

func (s *Service) setOp(ctx context.Context, gameType, code string, add bool) {
	if s == nil || s.client == nil {
		return
	}
	key := roomsKeyPrefix + gameType
	_, err := s.cb.Execute(func() (interface{}, error) {
		if add {
			return nil, s.client.SAdd(ctx, key, code).Err()
		}
		return nil, s.client.SRem(ctx, key, code).Err()
	})
	if err != nil && err != gobreaker.ErrOpenState {
		logging.Error(ctx, "redis set update failed", zap.String("key", key), zap.Error(err))
	}
}

// ActiveRooms lists the mirrored codes for one game type.
func (s *Service) ActiveRooms(ctx context.Context, gameType string) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.SMembers(ctx, roomsKeyPrefix+gameType).Result()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list active rooms: %w", err)
	}
	return res.([]string), nil
}

// Ping checks Redis connectivity, used by the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	return err
}

// Close gracefully shuts down the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
