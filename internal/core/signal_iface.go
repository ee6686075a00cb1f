package core

import (
	"errors"

	"github.com/dkeye/Tandem/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Frame is one encoded outbound event.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// RelayEnvelope carries a frame to a connection owned by another instance.
// MatchCreatedAt is set for match notifications so the receiver can drop
// stale ones.
type RelayEnvelope struct {
	ConnID         domain.ConnID `json:"connId"`
	Event          string        `json:"event"`
	Frame          Frame         `json:"frame"`
	MatchCreatedAt int64         `json:"matchCreatedAt,omitempty"`
}

// Relay delivers frames across service instances.
type Relay interface {
	Publish(instance string, env RelayEnvelope) error
}
