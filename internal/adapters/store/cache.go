package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
)

// CachedDirectory is a read-through cache in front of a RoomDirectory.
// Writes made through it invalidate the entry; writes from other instances
// are visible after ttl.
type CachedDirectory struct {
	core.RoomDirectory
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewCachedDirectory(dir core.RoomDirectory, ttl time.Duration) (*CachedDirectory, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 14,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("room cache: %w", err)
	}
	return &CachedDirectory{RoomDirectory: dir, cache: cache, ttl: ttl}, nil
}

func (c *CachedDirectory) Room(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	if v, ok := c.cache.Get(string(id)); ok {
		if room, ok := v.(domain.Room); ok {
			return room, nil
		}
	}
	room, err := c.RoomDirectory.Room(ctx, id)
	if err != nil {
		return room, err
	}
	c.cache.SetWithTTL(string(id), room, 1, c.ttl)
	return room, nil
}

func (c *CachedDirectory) CreateRoom(ctx context.Context, room domain.Room) error {
	c.cache.Del(string(room.ID))
	return c.RoomDirectory.CreateRoom(ctx, room)
}

func (c *CachedDirectory) SetMemberCount(ctx context.Context, id domain.RoomID, count int) error {
	c.cache.Del(string(id))
	return c.RoomDirectory.SetMemberCount(ctx, id, count)
}

func (c *CachedDirectory) DeleteRoom(ctx context.Context, id domain.RoomID) error {
	c.cache.Del(string(id))
	return c.RoomDirectory.DeleteRoom(ctx, id)
}

func (c *CachedDirectory) Close() {
	c.cache.Close()
}
