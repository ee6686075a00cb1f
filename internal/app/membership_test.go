package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Tandem/internal/adapters/store"
	"github.com/dkeye/Tandem/internal/core/mocks"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestMembership(t *testing.T) (*Membership, *store.Store, *clock) {
	t.Helper()
	s := newTestStore(t)
	c := &clock{now: t0}
	m := NewMembership(s, s)
	m.now = c.Now
	return m, s, c
}

func openRoom(t *testing.T, s *store.Store, id domain.RoomID) {
	t.Helper()
	require.NoError(t, s.CreateRoom(context.Background(), domain.Room{ID: id, CreatedAt: t0}))
}

func TestJoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, s, _ := newTestMembership(t)
	openRoom(t, s, "R1")
	p := domain.Participant{StableID: "eve_x"}

	n, err := m.Join(ctx, "R1", p)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = m.Join(ctx, "R1", p)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScenarioReloadSwapsIdentifier(t *testing.T) {
	ctx := context.Background()
	m, s, _ := newTestMembership(t)
	openRoom(t, s, "R1")

	_, err := m.Join(ctx, "R1", domain.Participant{StableID: "eve_X"})
	require.NoError(t, err)
	n, err := m.Join(ctx, "R1", domain.Participant{StableID: "eve_Y"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v, err := m.View(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, []domain.StableID{"eve_Y"}, v.Participants)

	room, err := s.Room(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, 1, room.MemberCount)
}

func TestScenarioBeaconLeaveByUser(t *testing.T) {
	ctx := context.Background()
	m, s, _ := newTestMembership(t)
	openRoom(t, s, "R1")
	_, err := m.Join(ctx, "R1", domain.Participant{StableID: "frank_1"})
	require.NoError(t, err)
	before, err := m.Join(ctx, "R1", domain.Participant{StableID: "grace_1"})
	require.NoError(t, err)

	removed, after, err := m.LeaveByUser(ctx, "R1", "frank", "")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, before-1, after)

	count, err := m.Count(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, after, count)
}

func TestLeaveUnknownIdentifier(t *testing.T) {
	ctx := context.Background()
	m, s, _ := newTestMembership(t)
	openRoom(t, s, "R1")
	_, err := m.Join(ctx, "R1", domain.Participant{StableID: "a_1"})
	require.NoError(t, err)

	n, err := m.Leave(ctx, "R1", "b_1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.Leave(ctx, "R1", "a_1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJoinMissingRoom(t *testing.T) {
	m, _, _ := newTestMembership(t)
	_, err := m.Join(context.Background(), "nope", domain.Participant{StableID: "a_1"})
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestJoinRoomDeletedBehindCache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	cached, err := store.NewCachedDirectory(s, time.Minute)
	require.NoError(t, err)
	defer cached.Close()
	m := NewMembership(s, cached)
	openRoom(t, s, "R1")

	_, err = m.Join(ctx, "R1", domain.Participant{StableID: "a_1"})
	require.NoError(t, err)
	// another instance deletes the room; this cache may still hold it
	require.NoError(t, s.DeleteRoom(ctx, "R1"))

	_, err = m.Join(ctx, "R1", domain.Participant{StableID: "b_1"})
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	members, err := s.Members(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, []domain.StableID{"a_1"}, members)
}

func TestDirectoryPushFailureDoesNotFailJoin(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockRoomDirectory(ctrl)
	s := newTestStore(t)
	openRoom(t, s, "R1")
	m := NewMembership(s, dir)

	dir.EXPECT().Room(gomock.Any(), domain.RoomID("R1")).Return(domain.Room{ID: "R1"}, nil)
	dir.EXPECT().SetMemberCount(gomock.Any(), domain.RoomID("R1"), 1).Return(errors.New("directory down"))

	n, err := m.Join(ctx, "R1", domain.Participant{StableID: "a_1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	members, err := s.Members(ctx, "R1")
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestLeavePushesCount(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockRoomDirectory(ctrl)
	s := newTestStore(t)
	openRoom(t, s, "R1")
	m := NewMembership(s, dir)

	dir.EXPECT().Room(gomock.Any(), domain.RoomID("R1")).Return(domain.Room{ID: "R1"}, nil).Times(2)
	gomock.InOrder(
		dir.EXPECT().SetMemberCount(gomock.Any(), domain.RoomID("R1"), 1),
		dir.EXPECT().SetMemberCount(gomock.Any(), domain.RoomID("R1"), 2),
		dir.EXPECT().SetMemberCount(gomock.Any(), domain.RoomID("R1"), 1),
	)

	_, err := m.Join(ctx, "R1", domain.Participant{StableID: "a_1"})
	require.NoError(t, err)
	_, err = m.Join(ctx, "R1", domain.Participant{StableID: "b_1"})
	require.NoError(t, err)
	_, err = m.Leave(ctx, "R1", "a_1")
	require.NoError(t, err)
	// nothing removed, nothing pushed
	_, err = m.Leave(ctx, "R1", "a_1")
	require.NoError(t, err)
}

func TestViewUsesAuthoritativeCount(t *testing.T) {
	ctx := context.Background()
	m, s, _ := newTestMembership(t)
	openRoom(t, s, "R1")
	_, err := m.Join(ctx, "R1", domain.Participant{StableID: "a_1"})
	require.NoError(t, err)
	require.NoError(t, s.SetMemberCount(ctx, "R1", 7))

	v, err := m.View(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, 1, v.Count)
	assert.Equal(t, 1, v.Room.MemberCount)
	assert.Equal(t, []domain.StableID{"a_1"}, v.Participants)
}
