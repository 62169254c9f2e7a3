package event

import (
	"CfdLedger/internal/address"
)

// Envelope wraps every committed command in the log
type Envelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Composite dedup key, "<command_type>:<request_id>"
	IdempotencyKey string

	// Command type discriminator
	CommandType CommandType

	// Signer the command was executed for
	Signer address.Address

	// Height the command executed at. Replay re-executes at this height.
	Height uint64

	// JSON-encoded command
	Payload []byte

	// SHA-256 of state AFTER applying this command
	StateHash [32]byte

	// Previous command's state hash (chain integrity)
	PrevHash [32]byte
}

// Decode re-parses the payload into its command.
func (e *Envelope) Decode() (Command, error) {
	return Decode(e.CommandType, e.Payload)
}
