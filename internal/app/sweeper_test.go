package app

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Tandem/internal/adapters/store"
	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSweepConfig() SweepConfig {
	return SweepConfig{
		RoomGrace:   2 * time.Minute,
		RoomMaxAge:  24 * time.Hour,
		MatchMaxAge: 24 * time.Hour,
	}
}

func newTestSweeper(t *testing.T, s *store.Store, conf SweepConfig, now time.Time) *Sweeper {
	t.Helper()
	sw := NewSweeper(s, s, s, conf)
	sw.now = func() time.Time { return now }
	return sw
}

// emptyRoomAt opens id, joins one member and leaves at left.
func emptyRoomAt(t *testing.T, s *store.Store, id domain.RoomID, left time.Time) {
	t.Helper()
	ctx := context.Background()
	openRoom(t, s, id)
	_, _, err := s.AddMember(ctx, id, domain.Participant{StableID: "x_1"}, left.Add(-time.Minute))
	require.NoError(t, err)
	_, _, err = s.RemoveMember(ctx, id, "x_1", left)
	require.NoError(t, err)
}

func TestScenarioSweepGracePeriod(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := t0.Add(time.Hour)
	emptyRoomAt(t, s, "stale", now.Add(-10*time.Minute))
	emptyRoomAt(t, s, "fresh", now.Add(-30*time.Second))

	rep, err := newTestSweeper(t, s, testSweepConfig(), now).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.EmptyRooms)

	_, err = s.Room(ctx, "stale")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = s.Room(ctx, "fresh")
	assert.NoError(t, err)

	tracked, err := s.TrackedRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.RoomID{"fresh"}, tracked)
}

func TestSweepEvictsNeverJoinedRooms(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := t0.Add(time.Hour)
	require.NoError(t, s.CreateRoom(ctx, domain.Room{ID: "lonely", CreatedAt: t0}))
	require.NoError(t, s.CreateRoom(ctx, domain.Room{ID: "new", CreatedAt: now.Add(-30 * time.Second)}))

	rep, err := newTestSweeper(t, s, testSweepConfig(), now).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.EmptyRooms)
	_, err = s.Room(ctx, "lonely")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = s.Room(ctx, "new")
	assert.NoError(t, err)
}

func TestSweepEvictsUnjoinedMatchRoom(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rec := seedMatch(t, s, t0)

	rep, err := newTestSweeper(t, s, testSweepConfig(), t0.Add(time.Hour)).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.EmptyRooms)
	_, err = s.Room(ctx, rec.RoomID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	got, err := s.Match(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchEnded, got.Status)
}

// joinDuringSweep lets a participant join right after the sweeper read the
// empty-room index.
type joinDuringSweep struct {
	core.MembershipStore
	join func()
}

func (j joinDuringSweep) EmptySince(ctx context.Context, cutoff time.Time) ([]domain.RoomID, error) {
	ids, err := j.MembershipStore.EmptySince(ctx, cutoff)
	j.join()
	return ids, err
}

func TestSweepKeepsRoomJoinedDuringPass(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := t0.Add(time.Hour)
	emptyRoomAt(t, s, "R1", now.Add(-10*time.Minute))

	members := joinDuringSweep{MembershipStore: s, join: func() {
		_, _, err := s.AddMember(ctx, "R1", domain.Participant{StableID: "zoe_1"}, now)
		require.NoError(t, err)
	}}
	sw := NewSweeper(members, s, s, testSweepConfig())
	sw.now = func() time.Time { return now }

	rep, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.EmptyRooms)

	_, err = s.Room(ctx, "R1")
	require.NoError(t, err)
	got, err := s.Members(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, []domain.StableID{"zoe_1"}, got)
}

func TestSweepKeepsOccupiedRooms(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := t0.Add(time.Hour)
	openRoom(t, s, "busy")
	_, _, err := s.AddMember(ctx, "busy", domain.Participant{StableID: "a_1"}, t0)
	require.NoError(t, err)

	rep, err := newTestSweeper(t, s, testSweepConfig(), now).Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.EmptyRooms)
	_, err = s.Room(ctx, "busy")
	assert.NoError(t, err)
}

func seedMatch(t *testing.T, s *store.Store, at time.Time) domain.MatchRecord {
	t.Helper()
	ctx := context.Background()
	a := domain.WaitingEntry{UserID: "a", ConnID: "ca", ArrivedAt: at}
	b := domain.WaitingEntry{UserID: "b", ConnID: "cb", ArrivedAt: at}
	require.NoError(t, s.Enqueue(ctx, a))
	require.NoError(t, s.Enqueue(ctx, b))
	rec := domain.MatchRecord{
		ID:           "m1",
		Participants: [2]domain.UserID{"a", "b"},
		RoomID:       "mroom",
		Status:       domain.MatchActive,
		CreatedAt:    at,
	}
	require.NoError(t, s.CreateRoom(ctx, domain.Room{ID: rec.RoomID, MatchID: rec.ID, CreatedAt: at}))
	require.NoError(t, s.Commit(ctx, rec, a, b))
	return rec
}

func TestSweepSkipsActiveMatchRoomsInProd(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := t0.Add(time.Hour)
	rec := seedMatch(t, s, t0)
	_, _, err := s.AddMember(ctx, rec.RoomID, domain.Participant{StableID: "a_1"}, t0)
	require.NoError(t, err)
	_, _, err = s.RemoveMember(ctx, rec.RoomID, "a_1", t0.Add(time.Minute))
	require.NoError(t, err)

	conf := testSweepConfig()
	conf.SkipActiveMatches = true
	rep, err := newTestSweeper(t, s, conf, now).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	_, err = s.Room(ctx, rec.RoomID)
	assert.NoError(t, err)

	conf.SkipActiveMatches = false
	rep, err = newTestSweeper(t, s, conf, now).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.EmptyRooms)
	got, err := s.Match(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchEnded, got.Status)
}

func TestSweepForceEvictsOldRooms(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	openRoom(t, s, "ancient")
	_, _, err := s.AddMember(ctx, "ancient", domain.Participant{StableID: "a_1"}, t0)
	require.NoError(t, err)

	rep, err := newTestSweeper(t, s, testSweepConfig(), t0.Add(25*time.Hour)).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ExpiredRooms)
	_, err = s.Room(ctx, "ancient")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	members, err := s.Members(ctx, "ancient")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestSweepDropsOrphanMembership(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	openRoom(t, s, "gone")
	_, _, err := s.AddMember(ctx, "gone", domain.Participant{StableID: "a_1"}, t0)
	require.NoError(t, err)
	require.NoError(t, s.DeleteRoom(ctx, "gone"))

	rep, err := newTestSweeper(t, s, testSweepConfig(), t0.Add(time.Minute)).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.OrphanMemberships)
	tracked, err := s.TrackedRooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, tracked)
}

func TestSweepRemovesOldMatches(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rec := seedMatch(t, s, t0)

	rep, err := newTestSweeper(t, s, testSweepConfig(), t0.Add(23*time.Hour)).Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.ExpiredMatches)

	rep, err = newTestSweeper(t, s, testSweepConfig(), t0.Add(25*time.Hour)).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ExpiredMatches)
	_, err = s.Match(ctx, rec.ID)
	assert.ErrorIs(t, err, domain.ErrMatchNotFound)
	_, ok, err := s.ActiveMatchOf(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}
