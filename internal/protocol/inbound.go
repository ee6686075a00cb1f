// Package protocol defines the WebSocket envelope and the closed set of
// messages exchanged with clients. Inbound messages are validated here, so
// handlers only ever see well-formed intents.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Tandem/internal/domain"
)

const (
	TypeJoinMatching  = "join-matching"
	TypeLeaveMatching = "leave-matching"
	TypeGetStats      = "get-stats"
	TypeJoinRoom      = "join-room"
	TypeLeaveRoom     = "leave-room"
	TypePing          = "ping"
)

var (
	ErrBadPayload  = errors.New("bad payload")
	ErrUnknownType = errors.New("unknown message type")
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Intent is one decoded client message.
type Intent interface {
	Type() string
}

type JoinMatching struct {
	UserID      domain.UserID
	Preferences *domain.Preferences
	Profile     domain.Profile
}

type LeaveMatching struct {
	UserID domain.UserID
}

type GetStats struct{}

type JoinRoom struct {
	RoomID      domain.RoomID
	Participant domain.Participant
}

type LeaveRoom struct {
	RoomID   domain.RoomID
	StableID domain.StableID
	UserID   domain.UserID
}

type Ping struct{}

func (JoinMatching) Type() string  { return TypeJoinMatching }
func (LeaveMatching) Type() string { return TypeLeaveMatching }
func (GetStats) Type() string      { return TypeGetStats }
func (JoinRoom) Type() string      { return TypeJoinRoom }
func (LeaveRoom) Type() string     { return TypeLeaveRoom }
func (Ping) Type() string          { return TypePing }

type userInfo struct {
	Name      string   `json:"name"`
	Age       *int     `json:"age"`
	Interests []string `json:"interests"`
}

type joinMatchingData struct {
	UserID      string              `json:"userId"`
	Preferences *domain.Preferences `json:"preferences"`
	UserInfo    *userInfo           `json:"userInfo"`
}

// RoomRequest is the body shared by the join-room intent and the rooms
// HTTP endpoints.
type RoomRequest struct {
	RoomID         string `json:"roomId"`
	UserIdentifier string `json:"userIdentifier"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	Action         string `json:"action"`
}

// Decode parses one inbound frame into a validated intent.
func Decode(raw []byte) (Intent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	switch env.Type {
	case TypeJoinMatching:
		return decodeJoinMatching(env.Data)
	case TypeLeaveMatching:
		return decodeLeaveMatching(env.Data)
	case TypeGetStats:
		return GetStats{}, nil
	case TypePing:
		return Ping{}, nil
	case TypeJoinRoom:
		var req RoomRequest
		if err := unmarshalData(env.Data, &req); err != nil {
			return nil, err
		}
		return req.JoinRoom()
	case TypeLeaveRoom:
		var req RoomRequest
		if err := unmarshalData(env.Data, &req); err != nil {
			return nil, err
		}
		return req.LeaveRoom()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrBadPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

func decodeJoinMatching(data json.RawMessage) (Intent, error) {
	var p joinMatchingData
	if err := unmarshalData(data, &p); err != nil {
		return nil, err
	}
	user, err := domain.ValidateUserID(p.UserID)
	if err != nil {
		return nil, err
	}
	if r := p.Preferences; r != nil && r.AgeRange != nil && r.AgeRange.Min > r.AgeRange.Max {
		return nil, fmt.Errorf("%w: ageRange min > max", ErrBadPayload)
	}
	intent := JoinMatching{UserID: user, Preferences: p.Preferences}
	if p.UserInfo != nil {
		name := strings.TrimSpace(p.UserInfo.Name)
		if len(name) > domain.MaxUsernameLen {
			return nil, domain.ErrUsernameTooLong
		}
		intent.Profile = domain.Profile{
			Name:      name,
			Age:       p.UserInfo.Age,
			Interests: p.UserInfo.Interests,
		}
	}
	return intent, nil
}

// leave-matching carries the raw user id string; an object with userId is
// accepted too.
func decodeLeaveMatching(data json.RawMessage) (Intent, error) {
	if len(data) == 0 {
		return nil, domain.ErrUserIDEmpty
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		var obj struct {
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		raw = obj.UserID
	}
	user, err := domain.ValidateUserID(raw)
	if err != nil {
		return nil, err
	}
	return LeaveMatching{UserID: user}, nil
}

// JoinRoom validates the request as a join. RoomID must already be set.
func (r RoomRequest) JoinRoom() (JoinRoom, error) {
	room, err := domain.ValidateRoomID(r.RoomID)
	if err != nil {
		return JoinRoom{}, err
	}
	id, err := domain.ParseStableID(r.UserIdentifier)
	if err != nil {
		return JoinRoom{}, err
	}
	p := domain.Participant{StableID: id, Name: strings.TrimSpace(r.UserName)}
	if r.UserID != "" {
		user, err := domain.ValidateUserID(r.UserID)
		if err != nil {
			return JoinRoom{}, err
		}
		p.UserID = user
	}
	if len(p.Name) > domain.MaxUsernameLen {
		return JoinRoom{}, domain.ErrUsernameTooLong
	}
	return JoinRoom{RoomID: room, Participant: p}, nil
}

// LeaveRoom validates the request as a leave. Either the identifier or the
// user id is required.
func (r RoomRequest) LeaveRoom() (LeaveRoom, error) {
	room, err := domain.ValidateRoomID(r.RoomID)
	if err != nil {
		return LeaveRoom{}, err
	}
	out := LeaveRoom{RoomID: room}
	if strings.TrimSpace(r.UserIdentifier) != "" {
		if out.StableID, err = domain.ParseStableID(r.UserIdentifier); err != nil {
			return LeaveRoom{}, err
		}
	}
	if strings.TrimSpace(r.UserID) != "" {
		if out.UserID, err = domain.ValidateUserID(r.UserID); err != nil {
			return LeaveRoom{}, err
		}
	}
	if out.StableID == "" && out.UserID == "" {
		return LeaveRoom{}, domain.ErrIdentifierEmpty
	}
	return out, nil
}

// IsValidation reports whether err came from input validation.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrBadPayload, ErrUnknownType,
		domain.ErrUserIDEmpty, domain.ErrUserIDTooLong, domain.ErrUsernameTooLong,
		domain.ErrRoomIDEmpty, domain.ErrRoomIDTooLong,
		domain.ErrIdentifierEmpty, domain.ErrIdentifierLength,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
