package orch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dkeye/Tandem/internal/app"
	"github.com/dkeye/Tandem/internal/app/sfu"
	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/dkeye/Tandem/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Orchestrator routes client intents to the matchmaker and the membership
// registry and delivers the resulting events. Connections owned by other
// instances are reached through Relay; a nil Relay means single instance.
type Orchestrator struct {
	Instance string
	Registry *app.Registry
	Matches  *app.Matchmaker
	Members  *app.Membership
	Tokens   *sfu.TokenIssuer
	Policy   app.Policy
	Relay    core.Relay
}

const connSep = "."

// NewConnID returns an id that names the owning instance.
func (o *Orchestrator) NewConnID() domain.ConnID {
	return domain.ConnID(o.Instance + connSep + uuid.NewString())
}

func instanceOf(id domain.ConnID) string {
	s := string(id)
	if i := strings.Index(s, connSep); i >= 0 {
		return s[:i]
	}
	return ""
}

// Handle runs one intent from conn. It is called from the connection's read
// loop, so intents of one connection are handled in order.
func (o *Orchestrator) Handle(ctx context.Context, conn domain.ConnID, in protocol.Intent) {
	switch in := in.(type) {
	case protocol.JoinMatching:
		o.joinMatching(ctx, conn, in)
	case protocol.LeaveMatching:
		o.leaveMatching(ctx, conn, in)
	case protocol.GetStats:
		o.getStats(ctx, conn)
	case protocol.JoinRoom:
		o.joinRoom(ctx, conn, in)
	case protocol.LeaveRoom:
		o.leaveRoom(ctx, conn, in)
	case protocol.Ping:
		o.Send(conn, protocol.TypePong, nil)
	default:
		log.Warn().Str("module", "orch").Str("conn", string(conn)).Str("type", in.Type()).Msg("unhandled intent")
	}
}

// OnDisconnect is the implicit leave of a closed connection. Room membership
// is kept: it belongs to the stable identifier, not the connection.
func (o *Orchestrator) OnDisconnect(ctx context.Context, conn domain.ConnID) {
	user, left, err := o.Matches.LeaveQueueForConnection(ctx, conn)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("conn", string(conn)).Msg("disconnect cleanup")
	} else if left {
		log.Info().Str("module", "orch").Str("conn", string(conn)).Str("user", string(user)).Msg("left queue on disconnect")
	}
	o.Registry.Unbind(conn)
}

// Send delivers an event to conn, locally or through the relay.
func (o *Orchestrator) Send(conn domain.ConnID, event string, data any) {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", event).Msg("encode")
		return
	}
	o.deliver(core.RelayEnvelope{ConnID: conn, Event: event, Frame: frame})
}

func (o *Orchestrator) deliver(env core.RelayEnvelope) {
	if o.Relay != nil {
		if inst := instanceOf(env.ConnID); inst != "" && inst != o.Instance {
			if err := o.Relay.Publish(inst, env); err != nil {
				log.Error().Err(err).Str("module", "orch").Str("conn", string(env.ConnID)).Str("instance", inst).Msg("relay publish")
			}
			return
		}
	}
	o.Deliver(env)
}

// Deliver writes env to a connection owned by this instance. Match
// notifications created before the connection's current wait session are
// dropped.
func (o *Orchestrator) Deliver(env core.RelayEnvelope) {
	if env.MatchCreatedAt != 0 {
		rec := domain.MatchRecord{CreatedAt: time.UnixMilli(env.MatchCreatedAt)}
		if rec.PredatesWait(o.Registry.WaitStart(env.ConnID)) {
			log.Info().Str("module", "orch").Str("conn", string(env.ConnID)).Msg("dropped stale match notification")
			return
		}
		o.Registry.EndWait(env.ConnID)
	}
	sig, ok := o.Registry.Signal(env.ConnID)
	if !ok {
		log.Debug().Str("module", "orch").Str("conn", string(env.ConnID)).Str("event", env.Event).Msg("no such connection")
		return
	}
	err := sig.TrySend(env.Frame)
	if err == nil || !errors.Is(err, core.ErrBackpressure) || o.Policy == nil {
		return
	}
	switch o.Policy.OnBackPressure(env.ConnID, env.Event) {
	case app.KickConn:
		log.Warn().Str("module", "orch").Str("conn", string(env.ConnID)).Str("event", env.Event).Msg("slow consumer, closing")
		o.Registry.Cancel(env.ConnID)
		sig.Close()
	case app.DropFrame, app.NoAction:
	}
}
