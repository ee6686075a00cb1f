package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Tandem/internal/core"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("nats not connected")

// NatsRelay publishes envelopes on <subject>.<instance>; every instance
// subscribes to its own subject.
type NatsRelay struct {
	subject string
	conn    *nats.Conn
	sub     *nats.Subscription
}

var _ core.Relay = (*NatsRelay)(nil)

func Connect(url, subject, name string) (*NatsRelay, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("module", "adapters.relay").Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("module", "adapters.relay").Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	log.Info().Str("module", "adapters.relay").Str("url", url).Str("subject", subject).Msg("nats connected")
	return &NatsRelay{subject: subject, conn: conn}, nil
}

func (r *NatsRelay) subjectOf(instance string) string {
	return r.subject + "." + instance
}

func (r *NatsRelay) Publish(instance string, env core.RelayEnvelope) error {
	if r.conn == nil || !r.conn.IsConnected() {
		return ErrNotConnected
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return r.conn.Publish(r.subjectOf(instance), data)
}

// Subscribe hands every envelope addressed to instance to deliver.
func (r *NatsRelay) Subscribe(instance string, deliver func(core.RelayEnvelope)) error {
	sub, err := r.conn.Subscribe(r.subjectOf(instance), func(msg *nats.Msg) {
		var env core.RelayEnvelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Warn().Err(err).Str("module", "adapters.relay").Str("subject", msg.Subject).Msg("bad envelope")
			return
		}
		deliver(env)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	r.sub = sub
	return nil
}

func (r *NatsRelay) Close() {
	if r.conn == nil {
		return
	}
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
	if err := r.conn.Drain(); err != nil {
		r.conn.Close()
	}
	log.Info().Str("module", "adapters.relay").Msg("nats closed")
}
