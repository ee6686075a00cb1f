package domain

import (
	"errors"
	"time"
)

var (
	ErrMatchNotFound   = errors.New("match not found")
	ErrSameParticipant = errors.New("cannot match a user with itself")
)

type MatchID string

type MatchStatus string

const (
	MatchActive MatchStatus = "active"
	MatchEnded  MatchStatus = "ended"
)

// WaitingEntry is one user in the wait pool.
type WaitingEntry struct {
	UserID      UserID       `json:"userId"`
	ConnID      ConnID       `json:"connId"`
	ArrivedAt   time.Time    `json:"arrivedAt"`
	Preferences *Preferences `json:"preferences,omitempty"`
	Profile     Profile      `json:"profile"`
}

// Score is the pool ordering key.
func (e WaitingEntry) Score() int64 { return e.ArrivedAt.UnixMilli() }

// SessionRecord lets the service find a waiting user by connection.
type SessionRecord struct {
	UserID      UserID       `json:"userId"`
	ConnID      ConnID       `json:"connId"`
	ArrivedAt   time.Time    `json:"arrivedAt"`
	Preferences *Preferences `json:"preferences,omitempty"`
}

type MatchRecord struct {
	ID           MatchID     `json:"matchId"`
	Participants [2]UserID   `json:"participantIds"`
	ConnIDs      [2]ConnID   `json:"connectionIds"`
	Profiles     [2]Profile  `json:"profiles"`
	RoomID       RoomID      `json:"roomId"`
	Status       MatchStatus `json:"status"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// Side returns the index of user in the record, or -1.
func (m *MatchRecord) Side(user UserID) int {
	for i, p := range m.Participants {
		if p == user {
			return i
		}
	}
	return -1
}

// PredatesWait reports whether the match was created before a wait session
// that started at start; such a notification is stale.
func (m *MatchRecord) PredatesWait(start time.Time) bool {
	if start.IsZero() {
		return false
	}
	return m.CreatedAt.Before(start)
}

type Stats struct {
	WaitingCount      int   `json:"waitingCount"`
	ActiveMatches     int   `json:"activeMatches"`
	AverageWaitMillis int64 `json:"averageWaitTime"`
}
