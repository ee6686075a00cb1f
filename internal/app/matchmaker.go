package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Matchmaker struct {
	store core.MatchStore
	rooms core.RoomDirectory
	now   func() time.Time
	newID func() string
}

func NewMatchmaker(store core.MatchStore, rooms core.RoomDirectory) *Matchmaker {
	return &Matchmaker{
		store: store,
		rooms: rooms,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// JoinQueue (re)enqueues e.UserID. Any still active match of the user is
// ended first. The returned entry carries the arrival time that starts the
// new wait session.
func (m *Matchmaker) JoinQueue(ctx context.Context, e domain.WaitingEntry) (domain.WaitingEntry, error) {
	e.ArrivedAt = m.now().Truncate(time.Millisecond)

	if id, ok, err := m.store.ActiveMatchOf(ctx, e.UserID); err != nil {
		return e, err
	} else if ok {
		if err := m.EndMatch(ctx, id); err != nil && !errors.Is(err, domain.ErrMatchNotFound) {
			return e, err
		}
	}

	rec := domain.SessionRecord{
		UserID:      e.UserID,
		ConnID:      e.ConnID,
		ArrivedAt:   e.ArrivedAt,
		Preferences: e.Preferences,
	}
	if err := m.store.SaveSession(ctx, rec); err != nil {
		return e, err
	}
	if err := m.store.Enqueue(ctx, e); err != nil {
		if derr := m.store.DeleteSession(ctx, e.UserID); derr != nil {
			log.Error().Err(derr).Str("module", "app.matchmaker").Str("user", string(e.UserID)).Msg("session rollback")
		}
		return e, err
	}
	log.Info().Str("module", "app.matchmaker").Str("user", string(e.UserID)).Str("conn", string(e.ConnID)).Msg("joined queue")
	return e, nil
}

func (m *Matchmaker) LeaveQueue(ctx context.Context, user domain.UserID) error {
	if err := m.store.Dequeue(ctx, user); err != nil {
		return err
	}
	if err := m.store.DeleteSession(ctx, user); err != nil {
		return err
	}
	log.Info().Str("module", "app.matchmaker").Str("user", string(user)).Msg("left queue")
	return nil
}

// LeaveQueueForConnection removes the user waiting on conn. A user who has
// since re-queued from another connection is left alone.
func (m *Matchmaker) LeaveQueueForConnection(ctx context.Context, conn domain.ConnID) (domain.UserID, bool, error) {
	return m.store.LeaveByConn(ctx, conn)
}

// FindMatch returns the earliest waiting user compatible with user, or nil.
func (m *Matchmaker) FindMatch(ctx context.Context, user domain.UserID) (*domain.WaitingEntry, error) {
	_, partner, err := m.findPair(ctx, user)
	return partner, err
}

func (m *Matchmaker) findPair(ctx context.Context, user domain.UserID) (*domain.WaitingEntry, *domain.WaitingEntry, error) {
	entries, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	var self *domain.WaitingEntry
	for i := range entries {
		if entries[i].UserID == user {
			self = &entries[i]
			break
		}
	}
	if self == nil {
		return nil, nil, nil
	}
	for i := range entries {
		other := &entries[i]
		if other.UserID == user {
			continue
		}
		if IsCompatible(*self, *other) {
			return self, other, nil
		}
	}
	return self, nil, nil
}

// CreateMatch opens a room for a and b and commits the match. It returns
// core.ErrPairingLost when either side was taken or left meanwhile; the room
// is then removed again.
func (m *Matchmaker) CreateMatch(ctx context.Context, a, b domain.WaitingEntry) (*domain.MatchRecord, error) {
	if a.UserID == b.UserID {
		return nil, domain.ErrSameParticipant
	}
	now := m.now()
	rec := &domain.MatchRecord{
		ID:           domain.MatchID(m.newID()),
		Participants: [2]domain.UserID{a.UserID, b.UserID},
		ConnIDs:      [2]domain.ConnID{a.ConnID, b.ConnID},
		Profiles:     [2]domain.Profile{a.Profile, b.Profile},
		RoomID:       domain.RoomID(m.newID()),
		Status:       domain.MatchActive,
		CreatedAt:    now,
	}
	room := domain.Room{
		ID:        rec.RoomID,
		Name:      fmt.Sprintf("%s & %s", a.Profile.DisplayName(), b.Profile.DisplayName()),
		MatchID:   rec.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.rooms.CreateRoom(ctx, room); err != nil {
		return nil, err
	}
	if err := m.store.Commit(ctx, *rec, a, b); err != nil {
		if derr := m.rooms.DeleteRoom(ctx, rec.RoomID); derr != nil {
			log.Warn().Err(derr).Str("module", "app.matchmaker").Str("room", string(rec.RoomID)).Msg("drop room of lost match")
		}
		return nil, err
	}
	log.Info().Str("module", "app.matchmaker").Str("match", string(rec.ID)).Str("room", string(rec.RoomID)).
		Str("a", string(a.UserID)).Str("b", string(b.UserID)).Msg("match created")
	return rec, nil
}

// TryMatch pairs user with the first compatible waiting user. A nil record
// with a nil error means no match; the user stays queued.
func (m *Matchmaker) TryMatch(ctx context.Context, user domain.UserID) (*domain.MatchRecord, error) {
	self, partner, err := m.findPair(ctx, user)
	if err != nil || partner == nil {
		return nil, err
	}
	rec, err := m.CreateMatch(ctx, *self, *partner)
	if errors.Is(err, core.ErrPairingLost) {
		log.Debug().Str("module", "app.matchmaker").Str("user", string(user)).
			Str("partner", string(partner.UserID)).Msg("pairing lost, staying queued")
		return nil, nil
	}
	return rec, err
}

func (m *Matchmaker) Match(ctx context.Context, id domain.MatchID) (domain.MatchRecord, error) {
	return m.store.Match(ctx, id)
}

// EndMatch marks id ended. Ending an ended match is a no-op.
func (m *Matchmaker) EndMatch(ctx context.Context, id domain.MatchID) error {
	if err := m.store.MarkEnded(ctx, id); err != nil {
		return err
	}
	log.Info().Str("module", "app.matchmaker").Str("match", string(id)).Msg("match ended")
	return nil
}

func (m *Matchmaker) Stats(ctx context.Context) (domain.Stats, error) {
	entries, err := m.store.Snapshot(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	active, err := m.store.ActiveCount(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	st := domain.Stats{WaitingCount: len(entries), ActiveMatches: active}
	if len(entries) > 0 {
		now := m.now()
		var total time.Duration
		for _, e := range entries {
			if w := now.Sub(e.ArrivedAt); w > 0 {
				total += w
			}
		}
		st.AverageWaitMillis = (total / time.Duration(len(entries))).Milliseconds()
	}
	return st, nil
}
