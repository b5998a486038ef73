// Package nats consumes the upload and user events this service reacts to.
package nats

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Subscriber opens durable manual-ack subscriptions.
type Subscriber interface {
	Subscribe(subject, durable string, handler nats.MsgHandler) (*nats.Subscription, error)
}

// HandlerFunc processes one message. A nil error acks it, ErrInvalidPayload
// terminates it and anything else naks it for redelivery.
type HandlerFunc func(ctx context.Context, msg *nats.Msg) error

// Route binds a handler to a durable consumer.
type Route struct {
	Durable string
	Handler HandlerFunc
}

var ErrInvalidPayload = errors.New("invalid payload")

type Client struct {
	sub     Subscriber
	log     zerolog.Logger
	timeout time.Duration
	subs    []*nats.Subscription
}

func NewClient(sub Subscriber, log zerolog.Logger) *Client {
	return &Client{
		sub:     sub,
		log:     log.With().Str("component", "nats-consumer").Logger(),
		timeout: 2 * time.Minute,
	}
}

// SubscribeAll loads all routes once during startup
func (c *Client) SubscribeAll(routes map[string]Route) error {
	for subject, route := range routes {
		s, err := c.sub.Subscribe(subject, route.Durable, c.wrap(subject, route.Handler))
		if err != nil {
			c.Unsubscribe()
			return err
		}
		c.subs = append(c.subs, s)
	}
	return nil
}

// Unsubscribe detaches every subscription; durable consumers keep their position.
func (c *Client) Unsubscribe() {
	for _, s := range c.subs {
		if err := s.Drain(); err != nil {
			c.log.Warn().Err(err).Str("subject", s.Subject).Msg("[NATS] failed to drain subscription")
		}
	}
	c.subs = nil
}

func (c *Client) wrap(subject string, fn HandlerFunc) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		c.dispatch(ctx, subject, fn, msg)
	}
}

func (c *Client) dispatch(ctx context.Context, subject string, fn HandlerFunc, msg *nats.Msg) {
	err := fn(ctx, msg)
	switch {
	case err == nil:
		c.ack(msg)
	case errors.Is(err, ErrInvalidPayload):
		c.log.Error().Err(err).Str("subject", subject).Msg("[NATS] dropping message")
		c.term(msg)
	default:
		c.log.Warn().Err(err).Str("subject", subject).Msg("[NATS] handler failed, will retry")
		c.nak(msg)
	}
}

// ack safely acknowledges the message
func (c *Client) ack(msg *nats.Msg) {
	if err := msg.Ack(); err != nil {
		c.log.Warn().Err(err).Msg("[NATS] Failed to ack message")
	}
}

// nak negatively acknowledges (retry)
func (c *Client) nak(msg *nats.Msg) {
	if err := msg.Nak(); err != nil {
		c.log.Warn().Err(err).Msg("[NATS] Failed to nak message")
	}
}

func (c *Client) term(msg *nats.Msg) {
	if err := msg.Term(); err != nil {
		c.log.Warn().Err(err).Msg("[NATS] Failed to terminate message")
	}
}
