package core

//go:generate mockgen -destination=mocks/mock_directory.go -package=mocks . RoomDirectory

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Tandem/internal/domain"
)

// ErrPairingLost means a participant was taken or left while a match was
// being committed. It is not a failure: the caller stays queued.
var ErrPairingLost = errors.New("pairing lost to a concurrent update")

// WaitPool is the arrival-ordered set of users looking for a partner.
type WaitPool interface {
	Enqueue(ctx context.Context, e domain.WaitingEntry) error
	Dequeue(ctx context.Context, user domain.UserID) error
	Snapshot(ctx context.Context) ([]domain.WaitingEntry, error)
	Size(ctx context.Context) (int, error)
}

// SessionStore keeps the lightweight per-user wait session, indexed by connection.
type SessionStore interface {
	SaveSession(ctx context.Context, rec domain.SessionRecord) error
	Session(ctx context.Context, user domain.UserID) (domain.SessionRecord, bool, error)
	DeleteSession(ctx context.Context, user domain.UserID) error
	// LeaveByConn atomically drops the session and pool entry of the user
	// waiting on conn. It reports false when the session belongs to another
	// connection or none exists.
	LeaveByConn(ctx context.Context, conn domain.ConnID) (domain.UserID, bool, error)
}

// MatchLedger stores match records. Records are inserted by Pairing.Commit.
type MatchLedger interface {
	Match(ctx context.Context, id domain.MatchID) (domain.MatchRecord, error)
	ActiveMatchOf(ctx context.Context, user domain.UserID) (domain.MatchID, bool, error)
	MarkEnded(ctx context.Context, id domain.MatchID) error
	DeleteMatch(ctx context.Context, id domain.MatchID) error
	ActiveCount(ctx context.Context) (int, error)
	MatchesCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.MatchID, error)
}

// Pairing writes a match record and removes both participants from the
// pool as one operation. It returns ErrPairingLost when either side is no
// longer waiting with the entry the caller scanned, or already has an
// active match.
type Pairing interface {
	Commit(ctx context.Context, rec domain.MatchRecord, a, b domain.WaitingEntry) error
}

// MatchStore is everything the matchmaker needs from shared storage.
type MatchStore interface {
	WaitPool
	SessionStore
	MatchLedger
	Pairing
}

// MembershipStore holds the stable identifiers of each room.
type MembershipStore interface {
	// AddMember returns the member count and how many stale identifiers of
	// the same owner were dropped. It fails with domain.ErrRoomNotFound when
	// the room entry does not exist.
	AddMember(ctx context.Context, room domain.RoomID, p domain.Participant, at time.Time) (count, replaced int, err error)
	RemoveMember(ctx context.Context, room domain.RoomID, id domain.StableID, at time.Time) (count, removed int, err error)
	// RemoveUser removes id (if non-empty) and every identifier belonging to user.
	RemoveUser(ctx context.Context, room domain.RoomID, user domain.UserID, id domain.StableID, at time.Time) (count, removed int, err error)
	MemberCount(ctx context.Context, room domain.RoomID) (int, error)
	Members(ctx context.Context, room domain.RoomID) ([]domain.StableID, error)
	EmptySince(ctx context.Context, cutoff time.Time) ([]domain.RoomID, error)
	TrackedRooms(ctx context.Context) ([]domain.RoomID, error)
	DropRoom(ctx context.Context, room domain.RoomID) error
	// EvictRoom deletes the room entry and its roster in one step. Unless
	// force is set it does nothing when the room has members or has been
	// empty since emptyBefore or later. It reports whether the room went.
	EvictRoom(ctx context.Context, room domain.RoomID, emptyBefore time.Time, force bool) (bool, error)
}

// RoomDirectory is the room metadata other clients read. The member count
// there is a best-effort projection of MembershipStore.
type RoomDirectory interface {
	CreateRoom(ctx context.Context, room domain.Room) error
	Room(ctx context.Context, id domain.RoomID) (domain.Room, error)
	SetMemberCount(ctx context.Context, id domain.RoomID, count int) error
	DeleteRoom(ctx context.Context, id domain.RoomID) error
	ListRooms(ctx context.Context) ([]domain.Room, error)
	RoomsCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.RoomID, error)
}
