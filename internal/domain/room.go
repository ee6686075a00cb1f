package domain

import (
	"errors"
	"strings"
	"time"
)

const MaxRoomIDLen = 64

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomIDEmpty      = errors.New("roomId is required")
	ErrRoomIDTooLong    = errors.New("roomId too long")
	ErrIdentifierEmpty  = errors.New("userIdentifier is required")
	ErrIdentifierLength = errors.New("userIdentifier too long")
)

type RoomID string

// Room is the directory projection of a room. MatchID is empty for rooms
// that were not opened by the matchmaker.
type Room struct {
	ID          RoomID    `json:"id"`
	Name        string    `json:"name"`
	MatchID     MatchID   `json:"matchId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	MemberCount int       `json:"memberCount"`
}

func ValidateRoomID(raw string) (RoomID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ErrRoomIDEmpty
	}
	if len(id) > MaxRoomIDLen {
		return "", ErrRoomIDTooLong
	}
	return RoomID(id), nil
}

// StableID identifies one (user, room) membership across reconnects and
// reloads. Clients build it as "<userId>_<localSuffix>".
type StableID string

const stableSep = "_"

func ParseStableID(raw string) (StableID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ErrIdentifierEmpty
	}
	if len(id) > 2*MaxUserIDLen {
		return "", ErrIdentifierLength
	}
	return StableID(id), nil
}

// User returns the user component: everything before the last separator,
// or the whole identifier when there is none.
func (s StableID) User() UserID {
	str := string(s)
	if i := strings.LastIndex(str, stableSep); i > 0 {
		return UserID(str[:i])
	}
	return UserID(str)
}

// BelongsTo reports whether s was issued for user u.
func (s StableID) BelongsTo(u UserID) bool {
	if u == "" {
		return false
	}
	str := string(s)
	return str == string(u) || strings.HasPrefix(str, string(u)+stableSep)
}

// Participant is a membership candidate. UserID overrides the user component
// derived from StableID when the client sent one explicitly.
type Participant struct {
	StableID StableID
	UserID   UserID
	Name     string
}

func (p Participant) Owner() UserID {
	if p.UserID != "" {
		return p.UserID
	}
	return p.StableID.User()
}
