package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/redis/go-redis/v9"
)

// owned mirrors domain.StableID.BelongsTo.
const ownedFn = `
local function owned(m, u)
    return u ~= '' and (m == u or string.sub(m, 1, #u + 1) == u .. '_')
end
`

// KEYS[1] room members, KEYS[2] empty-room index, KEYS[3] tracked rooms,
// KEYS[4] room hash
// ARGV[1] stable id, ARGV[2] owner, ARGV[3] now ms, ARGV[4] room id
// Returns {count, replaced}, or {-1, 0} when the room does not exist.
var addMemberScript = redis.NewScript(ownedFn + `
if redis.call('EXISTS', KEYS[4]) == 0 then
    return {-1, 0}
end
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[4])
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
    return {redis.call('SCARD', KEYS[1]), 0}
end
local replaced = 0
for _, m in ipairs(redis.call('SMEMBERS', KEYS[1])) do
    if owned(m, ARGV[2]) then
        redis.call('SREM', KEYS[1], m)
        replaced = replaced + 1
    end
end
redis.call('SADD', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[4])
return {redis.call('SCARD', KEYS[1]), replaced}
`)

// Same keys. ARGV[1] stable id or '', ARGV[2] owner or ''.
// A room that drops to zero members is stamped in the empty index once.
var removeMemberScript = redis.NewScript(ownedFn + `
local removed = 0
if ARGV[1] ~= '' then
    removed = removed + redis.call('SREM', KEYS[1], ARGV[1])
end
if ARGV[2] ~= '' then
    for _, m in ipairs(redis.call('SMEMBERS', KEYS[1])) do
        if owned(m, ARGV[2]) then
            removed = removed + redis.call('SREM', KEYS[1], m)
        end
    end
end
local count = redis.call('SCARD', KEYS[1])
if redis.call('ZSCORE', KEYS[3], ARGV[4]) then
    redis.call('ZADD', KEYS[3], ARGV[3], ARGV[4])
    if count == 0 then
        redis.call('ZADD', KEYS[2], 'NX', ARGV[3], ARGV[4])
    end
end
return {count, removed}
`)

// KEYS[1] room members, KEYS[2] empty-room index, KEYS[3] tracked rooms,
// KEYS[4] room hash, KEYS[5] rooms by created
// ARGV[1] room id, ARGV[2] empty-before ms, ARGV[3] '1' to force
// Without force the room must have no members and an empty stamp older
// than ARGV[2]. Returns 1 when the room was removed.
var evictRoomScript = redis.NewScript(`
if ARGV[3] ~= '1' then
    if redis.call('SCARD', KEYS[1]) > 0 then
        return 0
    end
    local since = redis.call('ZSCORE', KEYS[2], ARGV[1])
    if not since or tonumber(since) >= tonumber(ARGV[2]) then
        return 0
    end
end
redis.call('DEL', KEYS[1], KEYS[4])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('ZREM', KEYS[5], ARGV[1])
return 1
`)

var _ core.MembershipStore = (*Store)(nil)

func (s *Store) membershipKeys(room domain.RoomID) []string {
	return []string{s.keys.members(room), s.keys.membershipEmpty(), s.keys.membershipRooms(), s.keys.room(room)}
}

// AddMember returns domain.ErrRoomNotFound when the room hash is gone, so a
// stale directory read cannot resurrect a deleted room's roster.
func (s *Store) AddMember(ctx context.Context, room domain.RoomID, p domain.Participant, at time.Time) (int, int, error) {
	res, err := addMemberScript.Run(ctx, s.cli, s.membershipKeys(room),
		string(p.StableID), string(p.Owner()), millis(at), string(room),
	).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("add member %s to %s: %w", p.StableID, room, err)
	}
	if res[0] < 0 {
		return 0, 0, domain.ErrRoomNotFound
	}
	return int(res[0]), int(res[1]), nil
}

func (s *Store) EvictRoom(ctx context.Context, room domain.RoomID, emptyBefore time.Time, force bool) (bool, error) {
	flag := "0"
	if force {
		flag = "1"
	}
	keys := append(s.membershipKeys(room), s.keys.roomsByCreated())
	n, err := evictRoomScript.Run(ctx, s.cli, keys, string(room), millis(emptyBefore), flag).Int()
	if err != nil {
		return false, fmt.Errorf("evict room %s: %w", room, err)
	}
	return n == 1, nil
}

func (s *Store) RemoveMember(ctx context.Context, room domain.RoomID, id domain.StableID, at time.Time) (int, int, error) {
	return s.removeMembers(ctx, room, "", id, at)
}

func (s *Store) RemoveUser(ctx context.Context, room domain.RoomID, user domain.UserID, id domain.StableID, at time.Time) (int, int, error) {
	return s.removeMembers(ctx, room, user, id, at)
}

func (s *Store) removeMembers(ctx context.Context, room domain.RoomID, user domain.UserID, id domain.StableID, at time.Time) (int, int, error) {
	res, err := removeMemberScript.Run(ctx, s.cli, s.membershipKeys(room),
		string(id), string(user), millis(at), string(room),
	).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("remove member %s/%s from %s: %w", id, user, room, err)
	}
	return int(res[0]), int(res[1]), nil
}

func (s *Store) MemberCount(ctx context.Context, room domain.RoomID) (int, error) {
	n, err := s.cli.SCard(ctx, s.keys.members(room)).Result()
	if err != nil {
		return 0, fmt.Errorf("member count %s: %w", room, err)
	}
	return int(n), nil
}

func (s *Store) Members(ctx context.Context, room domain.RoomID) ([]domain.StableID, error) {
	raw, err := s.cli.SMembers(ctx, s.keys.members(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("members %s: %w", room, err)
	}
	sort.Strings(raw)
	out := make([]domain.StableID, len(raw))
	for i, m := range raw {
		out[i] = domain.StableID(m)
	}
	return out, nil
}

func (s *Store) EmptySince(ctx context.Context, cutoff time.Time) ([]domain.RoomID, error) {
	raw, err := s.cli.ZRangeByScore(ctx, s.keys.membershipEmpty(), &redis.ZRangeBy{
		Min: "-inf",
		Max: before(cutoff),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("empty rooms: %w", err)
	}
	return roomIDs(raw), nil
}

func (s *Store) TrackedRooms(ctx context.Context) ([]domain.RoomID, error) {
	raw, err := s.cli.ZRange(ctx, s.keys.membershipRooms(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("tracked rooms: %w", err)
	}
	return roomIDs(raw), nil
}

func (s *Store) DropRoom(ctx context.Context, room domain.RoomID) error {
	_, err := s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.keys.members(room))
		pipe.ZRem(ctx, s.keys.membershipEmpty(), string(room))
		pipe.ZRem(ctx, s.keys.membershipRooms(), string(room))
		return nil
	})
	if err != nil {
		return fmt.Errorf("drop membership %s: %w", room, err)
	}
	return nil
}

func roomIDs(raw []string) []domain.RoomID {
	out := make([]domain.RoomID, len(raw))
	for i, r := range raw {
		out[i] = domain.RoomID(r)
	}
	return out
}
