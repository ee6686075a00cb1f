package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
)

const (
	TypeMatchingJoined = "matching-joined"
	TypeMatchFound     = "match-found"
	TypeMatchingLeft   = "matching-left"
	TypeMatchingError  = "matching-error"
	TypeStatsUpdated   = "stats-updated"
	TypeRoomUpdated    = "room-updated"
	TypeRoomNotFound   = "room-not-found"
	TypeJoinFailed     = "join-failed"
	TypePong           = "pong"
)

type Ack struct {
	Success bool `json:"success"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

type Partner struct {
	UserID    domain.UserID `json:"userId"`
	Name      string        `json:"name"`
	Age       *int          `json:"age,omitempty"`
	Interests []string      `json:"interests"`
}

type MatchFound struct {
	MatchID domain.MatchID `json:"matchId"`
	RoomID  domain.RoomID  `json:"roomId"`
	Partner Partner        `json:"partner"`
}

type RoomUpdated struct {
	Room         domain.Room       `json:"room"`
	Participants []domain.StableID `json:"participants"`
	Count        int               `json:"count"`
}

// MatchFoundFor builds the notification for side, describing the other
// participant.
func MatchFoundFor(m *domain.MatchRecord, side int) MatchFound {
	other := 1 - side
	prof := m.Profiles[other]
	interests := prof.Interests
	if interests == nil {
		interests = []string{}
	}
	return MatchFound{
		MatchID: m.ID,
		RoomID:  m.RoomID,
		Partner: Partner{
			UserID:    m.Participants[other],
			Name:      prof.DisplayName(),
			Age:       prof.Age,
			Interests: interests,
		},
	}
}

// Encode wraps data in an envelope of the given type.
func Encode(typ string, data any) (core.Frame, error) {
	env := struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}{Type: typ, Data: data}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return b, nil
}
