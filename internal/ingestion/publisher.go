package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"CfdLedger/internal/core"
	"CfdLedger/internal/observability"
)

// StreamPublisher is the publishing half of jetstream.JetStream.
type StreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// PublishedEvent is the outbound form of a committed command.
type PublishedEvent struct {
	Sequence       int64           `json:"sequence"`
	CommandType    string          `json:"command_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Signer         string          `json:"signer"`
	Height         uint64          `json:"height"`
	Command        json.RawMessage `json:"command"`
	Output         any             `json:"output,omitempty"`
	Journals       int             `json:"journals"`
	StateHash      string          `json:"state_hash"`
	PrevHash       string          `json:"prev_hash"`
	Timestamp      time.Time       `json:"timestamp"`
}

// NewPublishedEvent renders a core output for downstream consumers.
func NewPublishedEvent(out core.CoreOutput) PublishedEvent {
	env := out.Envelope
	pe := PublishedEvent{
		Sequence:       env.Sequence,
		CommandType:    string(env.CommandType),
		IdempotencyKey: env.IdempotencyKey,
		Signer:         env.Signer.String(),
		Height:         env.Height,
		Command:        json.RawMessage(env.Payload),
		Output:         out.Output,
		StateHash:      hex.EncodeToString(env.StateHash[:]),
		PrevHash:       hex.EncodeToString(env.PrevHash[:]),
		Timestamp:      out.Emitted,
	}
	if out.Batch != nil {
		pe.Journals = len(out.Batch.Journals)
	}
	return pe
}

// OutboundPublisher publishes committed commands on clearing.events.<type>.
// A failed publish is counted and skipped; consumers can read the event
// log for anything they missed.
type OutboundPublisher struct {
	js        StreamPublisher
	inputChan <-chan core.CoreOutput
	metrics   *observability.Metrics
	log       zerolog.Logger
}

func NewOutboundPublisher(js StreamPublisher, inputChan <-chan core.CoreOutput, metrics *observability.Metrics, log zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{js: js, inputChan: inputChan, metrics: metrics, log: log}
}

// Run publishes until ctx is done or the input closes.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			if err := op.publish(ctx, out); err != nil {
				if op.metrics != nil {
					op.metrics.PublishDrops.Inc()
				}
				op.log.Warn().Err(err).Int64("seq", out.Envelope.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, out core.CoreOutput) error {
	data, err := json.Marshal(NewPublishedEvent(out))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = op.js.Publish(ctx, EventSubject(out.Envelope.CommandType), data,
		jetstream.WithMsgID(out.Envelope.IdempotencyKey))
	return err
}
