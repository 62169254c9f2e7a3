package governance

import "github.com/rs/zerolog"

// LoggingHandlers returns a handler for every proposal kind that records the
// execution and changes nothing. Integrations replace entries with real
// parameter changes.
func LoggingHandlers(log zerolog.Logger) Handlers {
	h := make(Handlers, proposalKindCount)
	for k := ProposalKind(0); k < proposalKindCount; k++ {
		h[k] = func(p *Proposal) error {
			log.Info().
				Uint64("proposal", p.ID).
				Str("kind", p.Type.String()).
				Str("title", p.Title).
				Msg("proposal executed")
			return nil
		}
	}
	return h
}
