package orch

import (
	"context"
	"errors"

	"github.com/dkeye/Tandem/internal/app"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/dkeye/Tandem/internal/protocol"
	"github.com/rs/zerolog/log"
)

// JoinRoom adds the participant and returns the updated room. Local
// connections already in the room get a room-updated event.
func (o *Orchestrator) JoinRoom(ctx context.Context, in protocol.JoinRoom) (app.RoomView, error) {
	if _, err := o.Members.Join(ctx, in.RoomID, in.Participant); err != nil {
		return app.RoomView{}, err
	}
	view, err := o.Members.View(ctx, in.RoomID)
	if err != nil {
		return app.RoomView{}, err
	}
	o.broadcastRoom(view)
	return view, nil
}

// LeaveRoom removes the participant. With a user id every identifier of
// that user goes. A room left empty ends its match.
func (o *Orchestrator) LeaveRoom(ctx context.Context, in protocol.LeaveRoom) (app.RoomView, error) {
	var (
		count int
		err   error
	)
	if in.UserID != "" {
		_, count, err = o.Members.LeaveByUser(ctx, in.RoomID, in.UserID, in.StableID)
	} else {
		count, err = o.Members.Leave(ctx, in.RoomID, in.StableID)
	}
	if err != nil {
		return app.RoomView{}, err
	}
	view, err := o.Members.View(ctx, in.RoomID)
	if err != nil {
		return app.RoomView{}, err
	}
	if count == 0 && view.Room.MatchID != "" {
		if err := o.Matches.EndMatch(ctx, view.Room.MatchID); err != nil && !errors.Is(err, domain.ErrMatchNotFound) {
			log.Warn().Err(err).Str("module", "orch").Str("room", string(in.RoomID)).Msg("end match of empty room")
		}
	}
	o.broadcastRoom(view)
	return view, nil
}

func (o *Orchestrator) joinRoom(ctx context.Context, conn domain.ConnID, in protocol.JoinRoom) {
	o.Registry.EnterRoom(conn, in.RoomID, in.Participant.StableID)
	if _, err := o.JoinRoom(ctx, in); err != nil {
		o.Registry.ExitRoom(conn, in.RoomID)
		if errors.Is(err, domain.ErrRoomNotFound) {
			o.Send(conn, protocol.TypeRoomNotFound, protocol.ErrorEvent{Message: "room not found"})
			return
		}
		log.Error().Err(err).Str("module", "orch").Str("conn", string(conn)).Str("room", string(in.RoomID)).Msg("join room")
		o.Send(conn, protocol.TypeJoinFailed, protocol.ErrorEvent{Message: genericError})
	}
}

// leaveRoom is best effort: the client may already be gone.
func (o *Orchestrator) leaveRoom(ctx context.Context, conn domain.ConnID, in protocol.LeaveRoom) {
	o.Registry.ExitRoom(conn, in.RoomID)
	view, err := o.LeaveRoom(ctx, in)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(conn)).Str("room", string(in.RoomID)).Msg("leave room")
		return
	}
	o.Send(conn, protocol.TypeRoomUpdated, roomUpdated(view))
}

func (o *Orchestrator) broadcastRoom(view app.RoomView) {
	ev := roomUpdated(view)
	for _, conn := range o.Registry.ConnsInRoom(view.Room.ID) {
		o.Send(conn, protocol.TypeRoomUpdated, ev)
	}
}

func roomUpdated(v app.RoomView) protocol.RoomUpdated {
	participants := v.Participants
	if participants == nil {
		participants = []domain.StableID{}
	}
	return protocol.RoomUpdated{Room: v.Room, Participants: participants, Count: v.Count}
}
