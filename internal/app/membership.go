package app

import (
	"context"
	"strings"
	"time"

	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RoomView is a room with its current roster.
type RoomView struct {
	Room         domain.Room
	Participants []domain.StableID
	Count        int
}

// Membership keeps room rosters. The count held by the store is
// authoritative; the directory copy is pushed after every change and may lag.
type Membership struct {
	store core.MembershipStore
	rooms core.RoomDirectory
	now   func() time.Time
}

func NewMembership(store core.MembershipStore, rooms core.RoomDirectory) *Membership {
	return &Membership{store: store, rooms: rooms, now: time.Now}
}

func (m *Membership) CreateRoom(ctx context.Context, name string) (domain.Room, error) {
	name = strings.TrimSpace(name)
	if len(name) > domain.MaxUsernameLen {
		name = name[:domain.MaxUsernameLen]
	}
	now := m.now()
	room := domain.Room{
		ID:        domain.RoomID(uuid.NewString()),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.rooms.CreateRoom(ctx, room); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (m *Membership) Rooms(ctx context.Context) ([]domain.Room, error) {
	return m.rooms.ListRooms(ctx)
}

func (m *Membership) Room(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	return m.rooms.Room(ctx, id)
}

// Join adds p to room, dropping any other identifier of the same user.
// Joining twice with the same identifier leaves the count unchanged.
func (m *Membership) Join(ctx context.Context, room domain.RoomID, p domain.Participant) (int, error) {
	if _, err := m.rooms.Room(ctx, room); err != nil {
		return 0, err
	}
	count, replaced, err := m.store.AddMember(ctx, room, p, m.now())
	if err != nil {
		return 0, err
	}
	log.Info().Str("module", "app.membership").Str("room", string(room)).Str("member", string(p.StableID)).
		Int("replaced", replaced).Int("count", count).Msg("joined")
	m.push(ctx, room, count)
	return count, nil
}

func (m *Membership) Leave(ctx context.Context, room domain.RoomID, id domain.StableID) (int, error) {
	count, removed, err := m.store.RemoveMember(ctx, room, id, m.now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Info().Str("module", "app.membership").Str("room", string(room)).Str("member", string(id)).Int("count", count).Msg("left")
		m.push(ctx, room, count)
	}
	return count, nil
}

// LeaveByUser removes id, if given, and every identifier of user. It is the
// beacon path where only the user id may be known.
func (m *Membership) LeaveByUser(ctx context.Context, room domain.RoomID, user domain.UserID, id domain.StableID) (removed, count int, err error) {
	count, removed, err = m.store.RemoveUser(ctx, room, user, id, m.now())
	if err != nil {
		return 0, 0, err
	}
	if removed > 0 {
		log.Info().Str("module", "app.membership").Str("room", string(room)).Str("user", string(user)).
			Int("removed", removed).Int("count", count).Msg("left by user")
		m.push(ctx, room, count)
	}
	return removed, count, nil
}

// Count is the authoritative member count. Unknown rooms count as zero.
func (m *Membership) Count(ctx context.Context, room domain.RoomID) (int, error) {
	return m.store.MemberCount(ctx, room)
}

// View returns the directory entry with the authoritative roster.
func (m *Membership) View(ctx context.Context, id domain.RoomID) (RoomView, error) {
	room, err := m.rooms.Room(ctx, id)
	if err != nil {
		return RoomView{}, err
	}
	members, err := m.store.Members(ctx, id)
	if err != nil {
		return RoomView{}, err
	}
	room.MemberCount = len(members)
	return RoomView{Room: room, Participants: members, Count: len(members)}, nil
}

func (m *Membership) push(ctx context.Context, room domain.RoomID, count int) {
	if err := m.rooms.SetMemberCount(ctx, room, count); err != nil {
		log.Warn().Err(err).Str("module", "app.membership").Str("room", string(room)).Int("count", count).Msg("directory count push failed")
	}
}
