package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Tandem/internal/domain"
	"github.com/dkeye/Tandem/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, id domain.ConnID, c *WsSignalConn) {
	var ping <-chan time.Time
	if ctl.opts.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.opts.PingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(id)).Msg("writePump ctx done")
			return
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, id domain.ConnID, c *WsSignalConn, cancel context.CancelFunc) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.disconnect(id)
	}()

	if p := ctl.opts.PingPeriod; p > 0 {
		deadline := func() error { return c.conn.SetReadDeadline(time.Now().Add(p * 2)) }
		_ = deadline()
		c.conn.SetPongHandler(func(string) error { return deadline() })
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		ctl.handleSignal(ctx, id, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, id domain.ConnID, data []byte) {
	in, err := protocol.Decode(data)
	if err != nil {
		ctl.reject(id, envelopeType(data), err)
		return
	}
	if in.Type() == protocol.TypeJoinMatching && !ctl.limiter.Allow(id) {
		log.Warn().Str("module", "signal").Str("conn", string(id)).Msg("join-matching rate limited")
		ctl.Orch.Send(id, protocol.TypeMatchingError, protocol.ErrorEvent{Message: "too many requests"})
		return
	}
	ctl.Orch.Handle(ctx, id, in)
}

func envelopeType(data []byte) string {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ""
	}
	return env.Type
}
