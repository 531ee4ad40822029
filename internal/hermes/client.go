package hermes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Client publishes audit lifecycle events and consumes collaborator
// messages. Components treat a nil Client as events disabled.
type Client interface {
	Publish(subject string, data interface{}) error
	Subscribe(subject string, handler func(subject string, data []byte)) error
	Close()
}

// Consumer is implemented by clients that can attach a durable consumer to
// the audit stream. Messages the handler fails on are redelivered unless
// the error is marked Permanent.
type Consumer interface {
	Consume(ctx context.Context, durable, subject string, handler func(subject string, data []byte) error) error
}

// Redelivery policy for durable consumers.
const (
	ConsumerMaxDeliver = 5
	ConsumerAckWait    = time.Minute
	RedeliveryDelay    = 30 * time.Second
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as one that redelivering the same message cannot fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type NATSClient struct {
	conn      *nats.Conn
	js        jetstream.JetStream
	subs      []*nats.Subscription
	consumers []jetstream.ConsumeContext
	logger    *slog.Logger
}

func NewNATSClient(ctx context.Context, url string, logger *slog.Logger) (*NATSClient, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	c := &NATSClient{conn: nc, js: js, logger: logger}
	if err := c.ensureStream(ctx); err != nil {
		logger.Warn("failed to ensure stream", "error", err)
	}
	return c, nil
}

func (c *NATSClient) ensureStream(ctx context.Context) error {
	maxAge, _ := time.ParseDuration(StreamMaxAge)
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{"audit.>"},
		MaxAge:   maxAge,
	})
	return err
}

func (c *NATSClient) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.conn.Publish(subject, payload)
}

func (c *NATSClient) Subscribe(subject string, handler func(string, []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return err
	}
	c.subs = append(c.subs, sub)
	return nil
}

// Consume binds a durable, explicitly acknowledged consumer on the audit
// stream filtered to subject.
func (c *NATSClient) Consume(ctx context.Context, durable, subject string, handler func(string, []byte) error) error {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ConsumerAckWait,
		MaxDeliver:    ConsumerMaxDeliver,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", durable, err)
	}
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		settle(msg, handler(msg.Subject(), msg.Data()), c.logger)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", durable, err)
	}
	c.consumers = append(c.consumers, cc)
	return nil
}

type settler interface {
	Ack() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

// settle acknowledges a handled message, terminates one that failed
// permanently and asks for redelivery of anything else.
func settle(msg settler, err error, logger *slog.Logger) {
	var ackErr error
	switch {
	case err == nil:
		ackErr = msg.Ack()
	case IsPermanent(err):
		ackErr = msg.Term()
	default:
		ackErr = msg.NakWithDelay(RedeliveryDelay)
	}
	if ackErr != nil {
		logger.Warn("failed to settle message", "error", ackErr)
	}
}

func (c *NATSClient) Close() {
	for _, cc := range c.consumers {
		cc.Stop()
	}
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
