package app

import "github.com/dkeye/Tandem/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickConn
)

// Policy decides what to do with a connection whose send buffer is full.
type Policy interface {
	OnBackPressure(conn domain.ConnID, event string) BackpressureAction
}

// SimplePolicy drops frames that the client can ask for again and
// disconnects on anything else.
type SimplePolicy struct {
	Droppable map[string]bool
}

func (p SimplePolicy) OnBackPressure(_ domain.ConnID, event string) BackpressureAction {
	if p.Droppable[event] {
		return DropFrame
	}
	return KickConn
}
