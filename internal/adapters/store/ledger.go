package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// The ledger write happens before the pool removals so that an interrupted
// script can at worst leave a duplicate record, never a user that is both
// matched and still waiting.
//
// KEYS[1] pool, KEYS[2] pool entries, KEYS[3] match record,
// KEYS[4] matches by created, KEYS[5] active matches,
// KEYS[6] active match of A, KEYS[7] active match of B,
// KEYS[8] session of A, KEYS[9] session of B
// ARGV[1] user A, ARGV[2] user B, ARGV[3] score A, ARGV[4] score B,
// ARGV[5] record JSON, ARGV[6] match id, ARGV[7] created ms
var commitPairScript = redis.NewScript(`
local sa = redis.call('ZSCORE', KEYS[1], ARGV[1])
local sb = redis.call('ZSCORE', KEYS[1], ARGV[2])
if not sa or not sb then
    return 0
end
if tonumber(sa) ~= tonumber(ARGV[3]) or tonumber(sb) ~= tonumber(ARGV[4]) then
    return 0
end
if redis.call('EXISTS', KEYS[6]) == 1 or redis.call('EXISTS', KEYS[7]) == 1 then
    return 0
end
redis.call('SET', KEYS[3], ARGV[5])
redis.call('ZADD', KEYS[4], ARGV[7], ARGV[6])
redis.call('ZADD', KEYS[5], ARGV[7], ARGV[6])
redis.call('SET', KEYS[6], ARGV[6])
redis.call('SET', KEYS[7], ARGV[6])
redis.call('ZREM', KEYS[1], ARGV[1], ARGV[2])
redis.call('HDEL', KEYS[2], ARGV[1], ARGV[2])
redis.call('DEL', KEYS[8], KEYS[9])
return 1
`)

// KEYS[1] match record, KEYS[2] active matches, KEYS[3] matches by created,
// KEYS[4], KEYS[5] active match of each participant
// ARGV[1] match id, ARGV[2] ended record JSON, ARGV[3] "end" or "delete"
var retireMatchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 0
end
if ARGV[3] == 'delete' then
    redis.call('DEL', KEYS[1])
    redis.call('ZREM', KEYS[3], ARGV[1])
else
    redis.call('SET', KEYS[1], ARGV[2])
end
redis.call('ZREM', KEYS[2], ARGV[1])
for i = 4, 5 do
    if redis.call('GET', KEYS[i]) == ARGV[1] then
        redis.call('DEL', KEYS[i])
    end
end
return 1
`)

var _ core.Pairing = (*Store)(nil)

func (s *Store) Commit(ctx context.Context, rec domain.MatchRecord, a, b domain.WaitingEntry) error {
	if a.UserID == b.UserID {
		return domain.ErrSameParticipant
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode match: %w", err)
	}
	k := s.keys
	ok, err := commitPairScript.Run(ctx, s.cli,
		[]string{
			k.pool(), k.poolEntries(), k.match(rec.ID), k.matchesByCreated(), k.matchesActive(),
			k.userMatch(a.UserID), k.userMatch(b.UserID), k.session(a.UserID), k.session(b.UserID),
		},
		string(a.UserID), string(b.UserID),
		strconv.FormatInt(a.Score(), 10), strconv.FormatInt(b.Score(), 10),
		data, string(rec.ID), millis(rec.CreatedAt),
	).Int()
	if err != nil {
		return fmt.Errorf("commit match %s: %w", rec.ID, err)
	}
	if ok == 0 {
		return core.ErrPairingLost
	}
	log.Info().Str("module", "store.ledger").Str("match", string(rec.ID)).
		Str("a", string(a.UserID)).Str("b", string(b.UserID)).Msg("match committed")
	return nil
}

func (s *Store) Match(ctx context.Context, id domain.MatchID) (domain.MatchRecord, error) {
	var rec domain.MatchRecord
	data, err := s.cli.Get(ctx, s.keys.match(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, domain.ErrMatchNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("load match %s: %w", id, err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode match %s: %w", id, err)
	}
	return rec, nil
}

func (s *Store) ActiveMatchOf(ctx context.Context, user domain.UserID) (domain.MatchID, bool, error) {
	id, err := s.cli.Get(ctx, s.keys.userMatch(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("active match of %s: %w", user, err)
	}
	return domain.MatchID(id), true, nil
}

func (s *Store) MarkEnded(ctx context.Context, id domain.MatchID) error {
	return s.retire(ctx, id, "end")
}

func (s *Store) DeleteMatch(ctx context.Context, id domain.MatchID) error {
	return s.retire(ctx, id, "delete")
}

func (s *Store) retire(ctx context.Context, id domain.MatchID, mode string) error {
	rec, err := s.Match(ctx, id)
	if err != nil {
		return err
	}
	rec.Status = domain.MatchEnded
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode match: %w", err)
	}
	k := s.keys
	n, err := retireMatchScript.Run(ctx, s.cli,
		[]string{
			k.match(id), k.matchesActive(), k.matchesByCreated(),
			k.userMatch(rec.Participants[0]), k.userMatch(rec.Participants[1]),
		},
		string(id), data, mode,
	).Int()
	if err != nil {
		return fmt.Errorf("%s match %s: %w", mode, id, err)
	}
	if n == 0 {
		return domain.ErrMatchNotFound
	}
	return nil
}

func (s *Store) ActiveCount(ctx context.Context) (int, error) {
	n, err := s.cli.ZCard(ctx, s.keys.matchesActive()).Result()
	if err != nil {
		return 0, fmt.Errorf("active matches: %w", err)
	}
	return int(n), nil
}

func (s *Store) MatchesCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.MatchID, error) {
	ids, err := s.cli.ZRangeByScore(ctx, s.keys.matchesByCreated(), &redis.ZRangeBy{
		Min: "-inf",
		Max: before(cutoff),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("matches before %s: %w", cutoff, err)
	}
	out := make([]domain.MatchID, len(ids))
	for i, id := range ids {
		out[i] = domain.MatchID(id)
	}
	return out, nil
}
