package orch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dkeye/Tandem/internal/adapters/store"
	"github.com/dkeye/Tandem/internal/app"
	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/dkeye/Tandem/internal/protocol"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []protocol.Envelope
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	var env protocol.Envelope
	if err := json.Unmarshal(f, &env); err != nil {
		return err
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	for i, f := range c.frames {
		out[i] = f.Type
	}
	return out
}

func (c *fakeConn) last(t *testing.T, v any) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.frames)
	f := c.frames[len(c.frames)-1]
	if v != nil {
		require.NoError(t, json.Unmarshal(f.Data, v))
	}
	return f.Type
}

type fakeRelay struct {
	mu   sync.Mutex
	sent map[string][]core.RelayEnvelope
}

func (r *fakeRelay) Publish(instance string, env core.RelayEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = map[string][]core.RelayEnvelope{}
	}
	r.sent[instance] = append(r.sent[instance], env)
	return nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })
	s := store.New(cli, "test")
	return &Orchestrator{
		Instance: "node1",
		Registry: app.NewRegistry(),
		Matches:  app.NewMatchmaker(s, s),
		Members:  app.NewMembership(s, s),
		Policy:   app.SimplePolicy{Droppable: map[string]bool{protocol.TypeStatsUpdated: true}},
	}, s
}

func (o *Orchestrator) connect() (domain.ConnID, *fakeConn) {
	id := o.NewConnID()
	c := &fakeConn{}
	o.Registry.Bind(id, c, func() {})
	return id, c
}

func TestJoinMatchingPairsTwoUsers(t *testing.T) {
	ctx := context.Background()
	o, s := newTestOrchestrator(t)
	aliceConn, alice := o.connect()
	bobConn, bob := o.connect()

	o.Handle(ctx, aliceConn, protocol.JoinMatching{UserID: "alice", Profile: domain.Profile{Name: "Alice"}})
	assert.Equal(t, []string{protocol.TypeMatchingJoined}, alice.types())

	o.Handle(ctx, bobConn, protocol.JoinMatching{UserID: "bob"})
	assert.Equal(t, []string{protocol.TypeMatchingJoined, protocol.TypeMatchFound}, bob.types())
	assert.Equal(t, []string{protocol.TypeMatchingJoined, protocol.TypeMatchFound}, alice.types())

	var forBob, forAlice protocol.MatchFound
	bob.last(t, &forBob)
	alice.last(t, &forAlice)
	assert.Equal(t, forBob.RoomID, forAlice.RoomID)
	assert.Equal(t, forBob.MatchID, forAlice.MatchID)
	assert.Equal(t, domain.UserID("alice"), forBob.Partner.UserID)
	assert.Equal(t, "Alice", forBob.Partner.Name)
	assert.Equal(t, domain.AnonymousName, forAlice.Partner.Name)

	n, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLeaveMatching(t *testing.T) {
	ctx := context.Background()
	o, s := newTestOrchestrator(t)
	conn, c := o.connect()

	o.Handle(ctx, conn, protocol.JoinMatching{UserID: "alice"})
	o.Handle(ctx, conn, protocol.LeaveMatching{UserID: "alice"})
	assert.Equal(t, []string{protocol.TypeMatchingJoined, protocol.TypeMatchingLeft}, c.types())
	assert.True(t, o.Registry.WaitStart(conn).IsZero())

	n, _ := s.Size(ctx)
	assert.Zero(t, n)
}

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t)
	conn, c := o.connect()

	o.Handle(ctx, conn, protocol.JoinMatching{UserID: "alice"})
	o.Handle(ctx, conn, protocol.GetStats{})

	var st domain.Stats
	assert.Equal(t, protocol.TypeStatsUpdated, c.last(t, &st))
	assert.Equal(t, 1, st.WaitingCount)
}

func TestStaleMatchNotificationDropped(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	conn, c := o.connect()
	start := time.Now()
	o.Registry.StartWait(conn, start)

	frame, err := protocol.Encode(protocol.TypeMatchFound, protocol.MatchFound{MatchID: "old"})
	require.NoError(t, err)
	o.Deliver(core.RelayEnvelope{
		ConnID:         conn,
		Event:          protocol.TypeMatchFound,
		Frame:          frame,
		MatchCreatedAt: start.Add(-time.Minute).UnixMilli(),
	})
	assert.Empty(t, c.types())

	o.Deliver(core.RelayEnvelope{
		ConnID:         conn,
		Event:          protocol.TypeMatchFound,
		Frame:          frame,
		MatchCreatedAt: start.Add(time.Second).UnixMilli(),
	})
	assert.Equal(t, []string{protocol.TypeMatchFound}, c.types())
	assert.True(t, o.Registry.WaitStart(conn).IsZero())
}

func TestDisconnectLeavesQueue(t *testing.T) {
	ctx := context.Background()
	o, s := newTestOrchestrator(t)
	conn, _ := o.connect()
	o.Handle(ctx, conn, protocol.JoinMatching{UserID: "alice"})

	o.OnDisconnect(ctx, conn)

	n, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, o.Registry.Len())
}

func TestJoinRoomMissing(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	conn, c := o.connect()

	o.Handle(context.Background(), conn, protocol.JoinRoom{
		RoomID:      "nope",
		Participant: domain.Participant{StableID: "eve_x"},
	})
	assert.Equal(t, []string{protocol.TypeRoomNotFound}, c.types())
	assert.Empty(t, o.Registry.ConnsInRoom("nope"))
}

func TestRoomJoinBroadcastsAndLeaveEndsMatch(t *testing.T) {
	ctx := context.Background()
	o, s := newTestOrchestrator(t)
	aConn, a := o.connect()
	bConn, b := o.connect()
	o.Handle(ctx, aConn, protocol.JoinMatching{UserID: "alice"})
	o.Handle(ctx, bConn, protocol.JoinMatching{UserID: "bob"})
	var found protocol.MatchFound
	b.last(t, &found)

	o.Handle(ctx, aConn, protocol.JoinRoom{RoomID: found.RoomID, Participant: domain.Participant{StableID: "alice_1"}})
	o.Handle(ctx, bConn, protocol.JoinRoom{RoomID: found.RoomID, Participant: domain.Participant{StableID: "bob_1"}})

	var upd protocol.RoomUpdated
	assert.Equal(t, protocol.TypeRoomUpdated, a.last(t, &upd))
	assert.Equal(t, 2, upd.Count)
	assert.Equal(t, []domain.StableID{"alice_1", "bob_1"}, upd.Participants)

	o.Handle(ctx, aConn, protocol.LeaveRoom{RoomID: found.RoomID, StableID: "alice_1"})
	o.Handle(ctx, bConn, protocol.LeaveRoom{RoomID: found.RoomID, UserID: "bob"})
	assert.Equal(t, protocol.TypeRoomUpdated, b.last(t, &upd))
	assert.Zero(t, upd.Count)

	rec, err := s.Match(ctx, found.MatchID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchEnded, rec.Status)
}

func TestSlowConsumerIsKicked(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	canceled := false
	conn := o.NewConnID()
	c := &fakeConn{full: true}
	o.Registry.Bind(conn, c, func() { canceled = true })

	o.Send(conn, protocol.TypeStatsUpdated, domain.Stats{})
	assert.False(t, c.closed, "stats frames are droppable")

	o.Send(conn, protocol.TypeMatchingJoined, protocol.Ack{Success: true})
	assert.True(t, c.closed)
	assert.True(t, canceled)
}

func TestRemoteConnectionGoesThroughRelay(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	relay := &fakeRelay{}
	o.Relay = relay

	o.Send("node2.abc", protocol.TypePong, nil)
	require.Len(t, relay.sent["node2"], 1)
	assert.Equal(t, domain.ConnID("node2.abc"), relay.sent["node2"][0].ConnID)
	assert.Equal(t, protocol.TypePong, relay.sent["node2"][0].Event)

	local, c := o.connect()
	o.Send(local, protocol.TypePong, nil)
	assert.Equal(t, []string{protocol.TypePong}, c.types())
	assert.Len(t, relay.sent, 1)
}

func TestPing(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	conn, c := o.connect()
	o.Handle(context.Background(), conn, protocol.Ping{})
	assert.Equal(t, []string{protocol.TypePong}, c.types())
}
