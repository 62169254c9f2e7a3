package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"CfdLedger/internal/event"
)

// Stream names.
const (
	CommandStream = "CLEARING_COMMANDS"
	EventStream   = "CLEARING_EVENTS"
)

// SubscriberConfig tunes the durable command consumer.
type SubscriberConfig struct {
	ConsumerName string
	AckWait      time.Duration
	MaxDeliver   int
}

// DefaultSubscriberConfig returns explicit ack, max_deliver=5, ack_wait=30s.
func DefaultSubscriberConfig() SubscriberConfig {
	return SubscriberConfig{ConsumerName: "cfdledger-commands", AckWait: 30 * time.Second, MaxDeliver: 5}
}

// NATSSubscriber consumes clearing.commands.> from JetStream and submits
// each message to the core before acknowledging it. One message is in
// flight at a time so the core sees the stream order.
type NATSSubscriber struct {
	js       jetstream.JetStream
	ingest   *IngestService
	cfg      SubscriberConfig
	log      zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewNATSSubscriber(js jetstream.JetStream, ingest *IngestService, cfg SubscriberConfig, log zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{js: js, ingest: ingest, cfg: cfg, log: log}
}

// Subscribe creates the durable consumer and starts consuming. Messages
// are handled until ctx is done or Stop is called.
func (ns *NATSSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := ns.js.CreateOrUpdateConsumer(ctx, CommandStream, jetstream.ConsumerConfig{
		Durable:       ns.cfg.ConsumerName,
		FilterSubject: CommandSubjectPrefix + ">",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ns.cfg.AckWait,
		MaxDeliver:    ns.cfg.MaxDeliver,
		MaxAckPending: 1,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", ns.cfg.ConsumerName, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		ns.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", ns.cfg.ConsumerName, err)
	}
	ns.consumer = cc
	ns.log.Info().Str("consumer", ns.cfg.ConsumerName).Str("subject", CommandSubjectPrefix+">").Msg("subscribed")
	return nil
}

func (ns *NATSSubscriber) handle(ctx context.Context, msg jetstream.Msg) {
	var outcome Outcome
	t, err := ParseSubject(msg.Subject())
	if err != nil {
		outcome = OutcomeInvalid
		ns.ingest.count("nats", outcome)
	} else {
		_, outcome, err = ns.ingest.Ingest(ctx, "nats", t, msg.Data())
	}
	if serr := Settle(msg, outcome); serr != nil {
		ns.log.Warn().Err(serr).Str("subject", msg.Subject()).Str("outcome", string(outcome)).Msg("settle message failed")
	}
	if outcome == OutcomeInvalid {
		ns.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("terminated undecodable message")
	}
}

// Acker is the part of a JetStream message used to settle it.
type Acker interface {
	Ack() error
	Nak() error
	Term() error
}

// Settle acknowledges msg by outcome. Faults and undecodable payloads
// would fail the same way on redelivery, so they are terminated.
// Infrastructure failures are redelivered.
func Settle(msg Acker, outcome Outcome) error {
	switch outcome {
	case OutcomeRetry:
		return msg.Nak()
	case OutcomeRejected, OutcomeInvalid:
		return msg.Term()
	default:
		return msg.Ack()
	}
}

// Stop stops the consumer.
func (ns *NATSSubscriber) Stop() {
	if ns.consumer != nil {
		ns.consumer.Stop()
	}
	ns.log.Info().Msg("NATS subscriber stopped")
}

// EnsureStreams creates the command and event streams if they don't exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, maxAge time.Duration) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      CommandStream,
			Subjects:  []string{CommandSubjectPrefix + ">"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    maxAge,
			Replicas:  1,
		},
		{
			Name:       EventStream,
			Subjects:   []string{EventSubjectPrefix + ">"},
			Storage:    jetstream.FileStorage,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     maxAge,
			Replicas:   1,
			Duplicates: 2 * time.Minute,
		},
	}
	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// PublishCommand sends cmd to its inbound subject. The idempotency key is
// the message id so JetStream drops republished duplicates too.
func PublishCommand(ctx context.Context, js jetstream.JetStream, cmd event.Command) (*jetstream.PubAck, error) {
	data, err := event.Encode(cmd)
	if err != nil {
		return nil, err
	}
	return js.Publish(ctx, CommandSubject(cmd.Type()), data, jetstream.WithMsgID(event.IdempotencyKey(cmd)))
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("cfdledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
