// Package projection feeds committed outputs to read-side consumers. The
// core's projection channel is non-blocking with drop: sinks that fall
// behind are rebuilt from the event log.
package projection

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"CfdLedger/internal/core"
	"CfdLedger/internal/observability"
)

// Sink stores projection batches.
type Sink interface {
	Write(ctx context.Context, b *Batch) error
}

// ProjectionWorker batches outputs into a Sink. A failed write is logged
// and the batch dropped; the sink is eventually consistent.
type ProjectionWorker struct {
	name         string
	sink         Sink
	inputChan    <-chan core.CoreOutput
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger

	lastSeq atomic.Int64
	failed  atomic.Int64
}

func NewProjectionWorker(
	name string,
	sink Sink,
	inputChan <-chan core.CoreOutput,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *ProjectionWorker {
	if batchSize <= 0 {
		batchSize = 500
	}
	if flushTimeout <= 0 {
		flushTimeout = time.Second
	}
	return &ProjectionWorker{
		name:         name,
		sink:         sink,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log,
	}
}

// LastSequence is the highest sequence written to the sink.
func (pw *ProjectionWorker) LastSequence() int64 { return pw.lastSeq.Load() }

// FailedBatches counts batches the sink rejected.
func (pw *ProjectionWorker) FailedBatches() int64 { return pw.failed.Load() }

// Run blocks until ctx is cancelled or the input channel is closed,
// flushing what it holds before returning.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	pw.log.Info().Str("projection", pw.name).Msg("projection worker started")
	defer pw.log.Info().Str("projection", pw.name).Int64("last_seq", pw.LastSequence()).Msg("projection worker stopped")

	var batch Batch
	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			pw.flush(context.Background(), &batch)
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				pw.flush(context.Background(), &batch)
				return nil
			}
			batch.Add(output)
			if batch.Len() >= pw.batchSize {
				pw.flush(ctx, &batch)
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			pw.flush(ctx, &batch)
			timer.Reset(pw.flushTimeout)
		}
	}
}

func (pw *ProjectionWorker) flush(ctx context.Context, batch *Batch) {
	if batch.Len() == 0 {
		return
	}
	defer batch.Reset()

	start := time.Now()
	if err := pw.sink.Write(ctx, batch); err != nil {
		pw.failed.Add(1)
		pw.log.Warn().Err(err).
			Str("projection", pw.name).
			Int64("seq", batch.LastSequence()).
			Int("events", batch.Len()).
			Msg("projection write failed")
		return
	}
	pw.lastSeq.Store(batch.LastSequence())
	if pw.metrics != nil {
		pw.metrics.ProjectionUpdateDur.WithLabelValues(pw.name).Observe(time.Since(start).Seconds())
	}
}
