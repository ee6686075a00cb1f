package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Signal    core.SignalConnection
	Cancel    context.CancelFunc
	WaitStart time.Time
	Rooms     map[domain.RoomID]domain.StableID
}

// Registry tracks the connections owned by this instance.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.ConnID]*connEntry)}
}

func (r *Registry) Bind(id domain.ConnID, sig core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{
		Signal: sig,
		Cancel: cancel,
		Rooms:  make(map[domain.RoomID]domain.StableID),
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("bound connection")
}

func (r *Registry) Unbind(id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unbound connection")
}

func (r *Registry) Signal(id domain.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Signal, true
	}
	return nil, false
}

// StartWait records that a wait session started on id at start.
func (r *Registry) StartWait(id domain.ConnID, start time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.WaitStart = start
	}
}

// WaitStart is zero when id is not waiting.
func (r *Registry) WaitStart(id domain.ConnID) time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.WaitStart
	}
	return time.Time{}
}

func (r *Registry) EndWait(id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.WaitStart = time.Time{}
	}
}

func (r *Registry) EnterRoom(id domain.ConnID, room domain.RoomID, member domain.StableID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.Rooms[room] = member
		log.Debug().Str("module", "app.registry").Str("conn", string(id)).Str("room", string(room)).Msg("entered room")
	}
}

func (r *Registry) ExitRoom(id domain.ConnID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		delete(e.Rooms, room)
	}
}

// ConnsInRoom lists local connections that entered room.
func (r *Registry) ConnsInRoom(room domain.RoomID) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ConnID
	for id, e := range r.conns {
		if _, ok := e.Rooms[room]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Cancel stops the connection's pumps.
func (r *Registry) Cancel(id domain.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("canceled connection")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
