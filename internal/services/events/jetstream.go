package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// JetStream is a durable Publisher backed by the upload-events stream.
type JetStream struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	log  zerolog.Logger
}

// Connect dials NATS, opens JetStream and makes sure the stream exists.
func Connect(url, name string, log zerolog.Logger) (*JetStream, error) {
	log = log.With().Str("component", "nats").Logger()

	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("[NATS] disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("[NATS] reconnected")
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info().Msg("[NATS] connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open JetStream: %w", err)
	}

	p := &JetStream{conn: conn, js: js, log: log}
	if err := p.ensureStream(); err != nil {
		log.Warn().Err(err).Str("stream", StreamName).Msg("[NATS] failed to ensure stream")
	}
	log.Info().Msg("[NATS] connected and JetStream initialized")
	return p, nil
}

func (p *JetStream) ensureStream() error {
	if _, err := p.js.StreamInfo(StreamName); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err := p.js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{"uploads.>", "users.*"},
		Storage:  nats.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
	return err
}

// Publish stores payload as JSON with a unique message id for server-side dedup.
func (p *JetStream) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", subject, err)
	}
	if _, err := p.js.Publish(subject, data, nats.MsgId(uuid.NewString()), nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe attaches a durable manual-ack consumer. handler must Ack or Nak.
func (p *JetStream) Subscribe(subject, durable string, handler nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := p.js.Subscribe(subject, handler, nats.Durable(durable), nats.ManualAck())
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	p.log.Info().Str("subject", subject).Str("durable", durable).Msg("[NATS] subscribed")
	return sub, nil
}

func (p *JetStream) Ping() error {
	if !p.conn.IsConnected() {
		return nats.ErrConnectionClosed
	}
	return nil
}

// Close drains subscriptions and closes the connection.
func (p *JetStream) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
