// Package store implements the core storage ports on Redis. All keys share
// one hash tag so the Lua scripts stay valid against a cluster.
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dkeye/Tandem/internal/config"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultPrefix = "tandem"
	sessionTTL    = 30 * time.Minute
)

type Store struct {
	cli        redis.UniversalClient
	keys       keys
	sessionTTL time.Duration
}

// Connect dials Redis (single node or cluster) and checks it with PING.
func Connect(ctx context.Context, conf config.RedisConf) (*Store, error) {
	var cli redis.UniversalClient
	if len(conf.ClusterAddrs) > 0 {
		cli = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        conf.ClusterAddrs,
			Password:     conf.Password,
			PoolSize:     conf.PoolSize,
			MinIdleConns: conf.MinIdleConns,
		})
	} else {
		cli = redis.NewClient(&redis.Options{
			Addr:         conf.Addr,
			Password:     conf.Password,
			DB:           conf.DB,
			PoolSize:     conf.PoolSize,
			MinIdleConns: conf.MinIdleConns,
		})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pingCtx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("redis ping %s: %w", conf.Addr, err)
	}
	log.Info().Str("module", "store.redis").Str("addr", conf.Addr).Int("cluster_nodes", len(conf.ClusterAddrs)).Msg("connected")
	return New(cli, conf.Prefix), nil
}

// New wraps an existing client.
func New(cli redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{
		cli:        cli,
		keys:       keys{base: "{" + prefix + "}"},
		sessionTTL: sessionTTL,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.cli.Ping(ctx).Err()
}

func (s *Store) Close() error {
	if err := s.cli.Close(); err != nil {
		log.Error().Err(err).Str("module", "store.redis").Msg("close")
		return err
	}
	return nil
}

type keys struct {
	base string
}

func (k keys) pool() string                       { return k.base + ":pool" }
func (k keys) poolEntries() string                { return k.base + ":pool:entries" }
func (k keys) session(u domain.UserID) string     { return k.base + ":session:" + string(u) }
func (k keys) sessionConn(c domain.ConnID) string { return k.base + ":session:conn:" + string(c) }
func (k keys) match(id domain.MatchID) string     { return k.base + ":match:" + string(id) }
func (k keys) matchesByCreated() string           { return k.base + ":matches:by_created" }
func (k keys) matchesActive() string              { return k.base + ":matches:active" }
func (k keys) userMatch(u domain.UserID) string   { return k.base + ":match:user:" + string(u) }
func (k keys) room(id domain.RoomID) string       { return k.base + ":room:" + string(id) }
func (k keys) roomsByCreated() string             { return k.base + ":rooms:by_created" }
func (k keys) members(id domain.RoomID) string    { return k.base + ":membership:" + string(id) }
func (k keys) membershipEmpty() string            { return k.base + ":membership:empty" }
func (k keys) membershipRooms() string            { return k.base + ":membership:rooms" }

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// before is an exclusive ZRANGEBYSCORE upper bound.
func before(t time.Time) string {
	return "(" + millis(t)
}
