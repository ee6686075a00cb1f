package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// KEYS[1] room hash, KEYS[2] rooms by created, KEYS[3] empty-room index,
// KEYS[4] tracked rooms
// ARGV: id, name, match id, created ms
// A new room starts empty, so it is stamped in the empty index at creation.
// Returns 0 when the room already exists.
var createRoomScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
    return 0
end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'name', ARGV[2], 'match_id', ARGV[3],
    'created_at', ARGV[4], 'updated_at', ARGV[4], 'member_count', 0)
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[1])
redis.call('ZADD', KEYS[3], 'NX', ARGV[4], ARGV[1])
redis.call('ZADD', KEYS[4], 'NX', ARGV[4], ARGV[1])
return 1
`)

// KEYS[1] room hash; ARGV[1] count, ARGV[2] now ms
var setCountScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 0
end
redis.call('HSET', KEYS[1], 'member_count', ARGV[1], 'updated_at', ARGV[2])
return 1
`)

type roomHash struct {
	ID          string `redis:"id"`
	Name        string `redis:"name"`
	MatchID     string `redis:"match_id"`
	CreatedAt   int64  `redis:"created_at"`
	UpdatedAt   int64  `redis:"updated_at"`
	MemberCount int    `redis:"member_count"`
}

func (h roomHash) room() domain.Room {
	return domain.Room{
		ID:          domain.RoomID(h.ID),
		Name:        h.Name,
		MatchID:     domain.MatchID(h.MatchID),
		CreatedAt:   time.UnixMilli(h.CreatedAt),
		UpdatedAt:   time.UnixMilli(h.UpdatedAt),
		MemberCount: h.MemberCount,
	}
}

var _ core.RoomDirectory = (*Store)(nil)

// CreateRoom is a no-op for an existing room.
func (s *Store) CreateRoom(ctx context.Context, room domain.Room) error {
	created, err := createRoomScript.Run(ctx, s.cli,
		[]string{s.keys.room(room.ID), s.keys.roomsByCreated(), s.keys.membershipEmpty(), s.keys.membershipRooms()},
		string(room.ID), room.Name, string(room.MatchID), millis(room.CreatedAt),
	).Int()
	if err != nil {
		return fmt.Errorf("create room %s: %w", room.ID, err)
	}
	if created == 1 {
		log.Info().Str("module", "store.directory").Str("room", string(room.ID)).Str("match", string(room.MatchID)).Msg("room created")
	}
	return nil
}

func (s *Store) Room(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	cmd := s.cli.HGetAll(ctx, s.keys.room(id))
	fields, err := cmd.Result()
	if err != nil {
		return domain.Room{}, fmt.Errorf("load room %s: %w", id, err)
	}
	if len(fields) == 0 {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	var h roomHash
	if err := cmd.Scan(&h); err != nil {
		return domain.Room{}, fmt.Errorf("decode room %s: %w", id, err)
	}
	return h.room(), nil
}

func (s *Store) SetMemberCount(ctx context.Context, id domain.RoomID, count int) error {
	ok, err := setCountScript.Run(ctx, s.cli, []string{s.keys.room(id)}, count, millis(time.Now())).Int()
	if err != nil {
		return fmt.Errorf("set member count %s: %w", id, err)
	}
	if ok == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (s *Store) DeleteRoom(ctx context.Context, id domain.RoomID) error {
	_, err := s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.keys.room(id))
		pipe.ZRem(ctx, s.keys.roomsByCreated(), string(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete room %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListRooms(ctx context.Context) ([]domain.Room, error) {
	ids, err := s.cli.ZRange(ctx, s.keys.roomsByCreated(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	out := make([]domain.Room, 0, len(ids))
	for _, id := range ids {
		room, err := s.Room(ctx, domain.RoomID(id))
		if errors.Is(err, domain.ErrRoomNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, room)
	}
	return out, nil
}

func (s *Store) RoomsCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.RoomID, error) {
	raw, err := s.cli.ZRangeByScore(ctx, s.keys.roomsByCreated(), &redis.ZRangeBy{
		Min: "-inf",
		Max: before(cutoff),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("rooms before %s: %w", cutoff, err)
	}
	return roomIDs(raw), nil
}
