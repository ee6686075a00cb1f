package signal

import (
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/dkeye/Tandem/internal/protocol"
	"github.com/rs/zerolog/log"
)

// reject answers a frame that failed validation with the failure event of
// its intent. Leave-room and unknown frames are only logged.
func (ctl *SignalWSController) reject(id domain.ConnID, typ string, err error) {
	log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Str("type", typ).Msg("rejected frame")

	msg := protocol.ErrorEvent{Message: err.Error()}
	switch typ {
	case protocol.TypeJoinMatching, protocol.TypeLeaveMatching:
		ctl.Orch.Send(id, protocol.TypeMatchingError, msg)
	case protocol.TypeJoinRoom:
		ctl.Orch.Send(id, protocol.TypeJoinFailed, msg)
	}
}
