package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Tandem/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// KEYS[1]: pool (sorted set, score = arrival ms)
// KEYS[2]: pool entries (hash userID -> entry JSON)
// Returns entry JSON in pool order; members without an entry are skipped.
var snapshotScript = redis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, -1)
local out = {}
for _, id in ipairs(ids) do
    local v = redis.call('HGET', KEYS[2], id)
    if v then
        table.insert(out, v)
    end
end
return out
`)

// Enqueue replaces any previous entry of the same user in one transaction.
func (s *Store) Enqueue(ctx context.Context, e domain.WaitingEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode waiting entry: %w", err)
	}
	user := string(e.UserID)
	_, err = s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.keys.pool(), user)
		pipe.HDel(ctx, s.keys.poolEntries(), user)
		pipe.ZAdd(ctx, s.keys.pool(), redis.Z{Score: float64(e.Score()), Member: user})
		pipe.HSet(ctx, s.keys.poolEntries(), user, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", user, err)
	}
	log.Debug().Str("module", "store.pool").Str("user", user).Int64("score", e.Score()).Msg("enqueued")
	return nil
}

func (s *Store) Dequeue(ctx context.Context, user domain.UserID) error {
	_, err := s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.keys.pool(), string(user))
		pipe.HDel(ctx, s.keys.poolEntries(), string(user))
		return nil
	})
	if err != nil {
		return fmt.Errorf("dequeue %s: %w", user, err)
	}
	return nil
}

func (s *Store) Snapshot(ctx context.Context) ([]domain.WaitingEntry, error) {
	raw, err := snapshotScript.Run(ctx, s.cli, []string{s.keys.pool(), s.keys.poolEntries()}).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pool snapshot: %w", err)
	}
	out := make([]domain.WaitingEntry, 0, len(raw))
	for _, v := range raw {
		var e domain.WaitingEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			log.Warn().Err(err).Str("module", "store.pool").Msg("skipping undecodable entry")
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) Size(ctx context.Context) (int, error) {
	n, err := s.cli.ZCard(ctx, s.keys.pool()).Result()
	if err != nil {
		return 0, fmt.Errorf("pool size: %w", err)
	}
	return int(n), nil
}

func (s *Store) SaveSession(ctx context.Context, rec domain.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.keys.session(rec.UserID), data, s.sessionTTL)
		pipe.Set(ctx, s.keys.sessionConn(rec.ConnID), string(rec.UserID), s.sessionTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.UserID, err)
	}
	return nil
}

func (s *Store) Session(ctx context.Context, user domain.UserID) (domain.SessionRecord, bool, error) {
	var rec domain.SessionRecord
	data, err := s.cli.Get(ctx, s.keys.session(user)).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("load session %s: %w", user, err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, false, fmt.Errorf("decode session %s: %w", user, err)
	}
	return rec, true, nil
}

// KEYS[1]: connection index, KEYS[2]: pool, KEYS[3]: pool entries
// ARGV[1]: session key prefix, ARGV[2]: connection id
// Returns {user, 1} when the user's session belongs to this connection and
// was removed together with its pool entry, {user, 0} when the session moved
// to another connection, {"", 0} when the connection is unknown.
var leaveByConnScript = redis.NewScript(`
local user = redis.call('GET', KEYS[1])
if not user then
    return {'', 0}
end
redis.call('DEL', KEYS[1])
local skey = ARGV[1] .. user
local raw = redis.call('GET', skey)
if not raw then
    return {user, 0}
end
local rec = cjson.decode(raw)
if rec['connId'] ~= ARGV[2] then
    return {user, 0}
end
redis.call('ZREM', KEYS[2], user)
redis.call('HDEL', KEYS[3], user)
redis.call('DEL', skey)
return {user, 1}
`)

// LeaveByConn removes the wait session and pool entry of the user waiting on
// conn, unless that user has since re-queued from another connection.
func (s *Store) LeaveByConn(ctx context.Context, conn domain.ConnID) (domain.UserID, bool, error) {
	res, err := leaveByConnScript.Run(ctx, s.cli,
		[]string{s.keys.sessionConn(conn), s.keys.pool(), s.keys.poolEntries()},
		s.keys.session(""), string(conn),
	).Slice()
	if err != nil {
		return "", false, fmt.Errorf("leave by conn %s: %w", conn, err)
	}
	if len(res) != 2 {
		return "", false, fmt.Errorf("leave by conn %s: unexpected reply %v", conn, res)
	}
	user, _ := res[0].(string)
	left, _ := res[1].(int64)
	return domain.UserID(user), left == 1, nil
}

func (s *Store) DeleteSession(ctx context.Context, user domain.UserID) error {
	rec, ok, err := s.Session(ctx, user)
	if err != nil {
		return err
	}
	_, err = s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.keys.session(user))
		if ok {
			pipe.Del(ctx, s.keys.sessionConn(rec.ConnID))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session %s: %w", user, err)
	}
	return nil
}
