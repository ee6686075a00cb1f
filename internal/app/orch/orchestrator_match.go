package orch

import (
	"context"

	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/dkeye/Tandem/internal/protocol"
	"github.com/rs/zerolog/log"
)

const genericError = "internal error, please retry"

func (o *Orchestrator) joinMatching(ctx context.Context, conn domain.ConnID, in protocol.JoinMatching) {
	entry, err := o.Matches.JoinQueue(ctx, domain.WaitingEntry{
		UserID:      in.UserID,
		ConnID:      conn,
		Preferences: in.Preferences,
		Profile:     in.Profile,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("conn", string(conn)).Str("user", string(in.UserID)).Msg("join queue")
		o.Send(conn, protocol.TypeMatchingError, protocol.ErrorEvent{Message: genericError})
		return
	}
	o.Registry.StartWait(conn, entry.ArrivedAt)
	o.Send(conn, protocol.TypeMatchingJoined, protocol.Ack{Success: true})

	rec, err := o.Matches.TryMatch(ctx, in.UserID)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("conn", string(conn)).Str("user", string(in.UserID)).Msg("try match")
		o.Send(conn, protocol.TypeMatchingError, protocol.ErrorEvent{Message: genericError})
		return
	}
	if rec != nil {
		o.notifyMatch(rec)
	}
}

// notifyMatch sends match-found to both participants, each describing the other.
func (o *Orchestrator) notifyMatch(rec *domain.MatchRecord) {
	for side, conn := range rec.ConnIDs {
		frame, err := protocol.Encode(protocol.TypeMatchFound, protocol.MatchFoundFor(rec, side))
		if err != nil {
			log.Error().Err(err).Str("module", "orch").Str("match", string(rec.ID)).Msg("encode match-found")
			continue
		}
		o.deliver(core.RelayEnvelope{
			ConnID:         conn,
			Event:          protocol.TypeMatchFound,
			Frame:          frame,
			MatchCreatedAt: rec.CreatedAt.UnixMilli(),
		})
	}
}

func (o *Orchestrator) leaveMatching(ctx context.Context, conn domain.ConnID, in protocol.LeaveMatching) {
	if err := o.Matches.LeaveQueue(ctx, in.UserID); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("conn", string(conn)).Str("user", string(in.UserID)).Msg("leave queue")
		o.Send(conn, protocol.TypeMatchingError, protocol.ErrorEvent{Message: genericError})
		return
	}
	o.Registry.EndWait(conn)
	o.Send(conn, protocol.TypeMatchingLeft, protocol.Ack{Success: true})
}

func (o *Orchestrator) getStats(ctx context.Context, conn domain.ConnID) {
	st, err := o.Matches.Stats(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("conn", string(conn)).Msg("stats")
		return
	}
	o.Send(conn, protocol.TypeStatsUpdated, st)
}
