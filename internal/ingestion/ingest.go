package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"CfdLedger/internal/core"
	"CfdLedger/internal/event"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/observability"
)

// Submitter is the command entry of the deterministic core.
type Submitter interface {
	Submit(ctx context.Context, cmd event.Command) (core.Result, error)
}

// Outcome classifies one ingested command.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeStale     Outcome = "stale"
	OutcomeRejected  Outcome = "rejected" // the component raised a fault
	OutcomeInvalid   Outcome = "invalid"  // the payload could not be decoded
	OutcomeRetry     Outcome = "retry"    // infrastructure failure, safe to redeliver
)

// ErrInvalidCommand wraps payloads that do not decode into a command.
var ErrInvalidCommand = errors.New("invalid command")

// IngestService decodes commands and hands them to the core. NATS and the
// HTTP gateway both submit through it.
type IngestService struct {
	core    Submitter
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewIngestService(c Submitter, metrics *observability.Metrics, log zerolog.Logger) *IngestService {
	return &IngestService{core: c, metrics: metrics, log: log}
}

// Ingest decodes body as a command of type t and submits it. transport
// labels the metrics.
func (s *IngestService) Ingest(ctx context.Context, transport string, t event.CommandType, body []byte) (core.Result, Outcome, error) {
	cmd, err := event.Decode(t, body)
	if err != nil {
		s.count(transport, OutcomeInvalid)
		s.log.Warn().Err(err).Str("transport", transport).Str("command", string(t)).Msg("undecodable command")
		return core.Result{}, OutcomeInvalid, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	return s.Submit(ctx, transport, cmd)
}

// Submit hands an already decoded command to the core.
func (s *IngestService) Submit(ctx context.Context, transport string, cmd event.Command) (core.Result, Outcome, error) {
	res, err := s.core.Submit(ctx, cmd)
	outcome := Classify(res, err)
	s.count(transport, outcome)

	switch outcome {
	case OutcomeRejected:
		s.log.Debug().Err(err).
			Str("transport", transport).
			Str("command", string(cmd.Type())).
			Str("fault_kind", fault.KindOf(err).String()).
			Msg("command rejected")
	case OutcomeRetry:
		s.log.Warn().Err(err).
			Str("transport", transport).
			Str("command", string(cmd.Type())).
			Msg("command not applied, retryable")
	}
	return res, outcome, err
}

// Classify maps a submission result to its outcome.
func Classify(res core.Result, err error) Outcome {
	switch {
	case errors.Is(err, ErrInvalidCommand):
		return OutcomeInvalid
	case fault.IsFault(err):
		return OutcomeRejected
	case err != nil:
		return OutcomeRetry
	case res.Duplicate:
		return OutcomeDuplicate
	case res.Stale:
		return OutcomeStale
	default:
		return OutcomeApplied
	}
}

func (s *IngestService) count(transport string, outcome Outcome) {
	if s.metrics != nil {
		s.metrics.IngestMessages.WithLabelValues(transport, string(outcome)).Inc()
	}
}
