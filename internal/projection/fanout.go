package projection

import (
	"context"

	"CfdLedger/internal/core"
	"CfdLedger/internal/observability"
)

type subscriber struct {
	name string
	ch   chan core.CoreOutput
}

// Fanout copies every output from the core's projection channel to each
// subscriber. A full subscriber misses the output; the others still get it.
type Fanout struct {
	in      <-chan core.CoreOutput
	subs    []subscriber
	metrics *observability.Metrics
}

func NewFanout(in <-chan core.CoreOutput, metrics *observability.Metrics) *Fanout {
	return &Fanout{in: in, metrics: metrics}
}

// Subscribe registers a consumer. Call it before Run.
func (f *Fanout) Subscribe(name string, buffer int) <-chan core.CoreOutput {
	ch := make(chan core.CoreOutput, buffer)
	f.subs = append(f.subs, subscriber{name: name, ch: ch})
	return ch
}

// Run forwards until ctx is done or the input closes, then closes every
// subscriber channel.
func (f *Fanout) Run(ctx context.Context) {
	defer func() {
		for _, s := range f.subs {
			close(s.ch)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case out, ok := <-f.in:
			if !ok {
				return
			}
			for _, s := range f.subs {
				select {
				case s.ch <- out:
				default:
					if f.metrics != nil {
						f.metrics.ProjectionDrops.WithLabelValues(s.name).Inc()
					}
				}
				if f.metrics != nil {
					f.metrics.SetChannelMetrics("projection_"+s.name, len(s.ch), cap(s.ch))
				}
			}
		}
	}
}
