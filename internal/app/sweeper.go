package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

type SweepConfig struct {
	RoomGrace   time.Duration
	RoomMaxAge  time.Duration
	MatchMaxAge time.Duration
	// SkipActiveMatches keeps empty rooms whose match is still active.
	SkipActiveMatches bool
}

// SweepReport counts what one pass removed.
type SweepReport struct {
	EmptyRooms        int
	ExpiredRooms      int
	OrphanMemberships int
	ExpiredMatches    int
	Skipped           int
	Waiting           int
}

type Sweeper struct {
	members core.MembershipStore
	rooms   core.RoomDirectory
	ledger  core.MatchLedger
	pool    core.WaitPool
	conf    SweepConfig
	now     func() time.Time
	cron    *cron.Cron
}

func NewSweeper(members core.MembershipStore, rooms core.RoomDirectory, matches core.MatchStore, conf SweepConfig) *Sweeper {
	return &Sweeper{
		members: members,
		rooms:   rooms,
		ledger:  matches,
		pool:    matches,
		conf:    conf,
		now:     time.Now,
	}
}

// Start runs Sweep every interval until Stop.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if _, err := s.Sweep(ctx); err != nil {
			log.Error().Err(err).Str("module", "app.sweeper").Msg("sweep")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweeper: %w", err)
	}
	s.cron.Start()
	log.Info().Str("module", "app.sweeper").Dur("interval", interval).Msg("sweeper started")
	return nil
}

// Stop waits for a running pass to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	log.Info().Str("module", "app.sweeper").Msg("sweeper stopped")
}

// Sweep runs one reconciliation pass. Only entries past a staleness
// threshold are touched. Failures on single entries are logged and the
// pass goes on; they are returned joined.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var (
		rep  SweepReport
		errs []error
	)
	now := s.now()

	if err := s.sweepEmpty(ctx, now, &rep); err != nil {
		errs = append(errs, err)
	}
	if s.conf.RoomMaxAge > 0 {
		if err := s.sweepExpiredRooms(ctx, now, &rep); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.sweepOrphans(ctx, &rep); err != nil {
		errs = append(errs, err)
	}
	if s.conf.MatchMaxAge > 0 {
		if err := s.sweepMatches(ctx, now, &rep); err != nil {
			errs = append(errs, err)
		}
	}
	if n, err := s.pool.Size(ctx); err == nil {
		rep.Waiting = n
	}

	log.Info().Str("module", "app.sweeper").
		Int("empty_rooms", rep.EmptyRooms).
		Int("expired_rooms", rep.ExpiredRooms).
		Int("orphans", rep.OrphanMemberships).
		Int("expired_matches", rep.ExpiredMatches).
		Int("skipped", rep.Skipped).
		Int("waiting", rep.Waiting).
		Dur("took", s.now().Sub(now)).
		Msg("sweep done")
	return rep, errors.Join(errs...)
}

// sweepEmpty evicts rooms empty since before the grace cutoff. A room
// never joined counts as empty from its creation. The store re-checks
// both conditions when deleting, so a join racing the pass wins.
func (s *Sweeper) sweepEmpty(ctx context.Context, now time.Time, rep *SweepReport) error {
	cutoff := now.Add(-s.conf.RoomGrace)
	ids, err := s.members.EmptySince(ctx, cutoff)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		room, err := s.rooms.Room(ctx, id)
		orphan := errors.Is(err, domain.ErrRoomNotFound)
		if orphan {
			room = domain.Room{ID: id}
		} else if err != nil {
			errs = append(errs, err)
			continue
		}
		if !orphan && s.conf.SkipActiveMatches && s.matchActive(ctx, room.MatchID) {
			rep.Skipped++
			continue
		}
		evicted, err := s.evict(ctx, room, cutoff, false)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch {
		case !evicted:
		case orphan:
			rep.OrphanMemberships++
		default:
			rep.EmptyRooms++
			log.Info().Str("module", "app.sweeper").Str("room", string(id)).Msg("evicted empty room")
		}
	}
	return errors.Join(errs...)
}

func (s *Sweeper) sweepExpiredRooms(ctx context.Context, now time.Time, rep *SweepReport) error {
	ids, err := s.rooms.RoomsCreatedBefore(ctx, now.Add(-s.conf.RoomMaxAge))
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		room, err := s.rooms.Room(ctx, id)
		if errors.Is(err, domain.ErrRoomNotFound) {
			room = domain.Room{ID: id}
		} else if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := s.evict(ctx, room, now, true); err != nil {
			errs = append(errs, err)
			continue
		}
		rep.ExpiredRooms++
		log.Warn().Str("module", "app.sweeper").Str("room", string(id)).Time("created", room.CreatedAt).Msg("force evicted room past max age")
	}
	return errors.Join(errs...)
}

func (s *Sweeper) sweepOrphans(ctx context.Context, rep *SweepReport) error {
	ids, err := s.members.TrackedRooms(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		_, err := s.rooms.Room(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrRoomNotFound) {
			errs = append(errs, err)
			continue
		}
		if err := s.members.DropRoom(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		rep.OrphanMemberships++
	}
	return errors.Join(errs...)
}

func (s *Sweeper) sweepMatches(ctx context.Context, now time.Time, rep *SweepReport) error {
	ids, err := s.ledger.MatchesCreatedBefore(ctx, now.Add(-s.conf.MatchMaxAge))
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		if err := s.ledger.MarkEnded(ctx, id); err != nil && !errors.Is(err, domain.ErrMatchNotFound) {
			errs = append(errs, err)
			continue
		}
		if err := s.ledger.DeleteMatch(ctx, id); err != nil && !errors.Is(err, domain.ErrMatchNotFound) {
			errs = append(errs, err)
			continue
		}
		rep.ExpiredMatches++
	}
	return errors.Join(errs...)
}

func (s *Sweeper) matchActive(ctx context.Context, id domain.MatchID) bool {
	if id == "" {
		return false
	}
	rec, err := s.ledger.Match(ctx, id)
	if err != nil {
		return false
	}
	return rec.Status == domain.MatchActive
}

func (s *Sweeper) evict(ctx context.Context, room domain.Room, emptyBefore time.Time, force bool) (bool, error) {
	evicted, err := s.members.EvictRoom(ctx, room.ID, emptyBefore, force)
	if err != nil || !evicted {
		return false, err
	}
	// drops any cached copy of the entry
	if err := s.rooms.DeleteRoom(ctx, room.ID); err != nil {
		return true, err
	}
	if room.MatchID != "" {
		if err := s.ledger.MarkEnded(ctx, room.MatchID); err != nil && !errors.Is(err, domain.ErrMatchNotFound) {
			return true, err
		}
	}
	return true, nil
}
