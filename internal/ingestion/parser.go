// Package ingestion moves commands from external transports into the
// deterministic core and committed events back out to NATS.
package ingestion

import (
	"fmt"
	"strings"

	"CfdLedger/internal/event"
)

// Subjects follow clearing.commands.<type> inbound and
// clearing.events.<type> outbound.
const (
	CommandSubjectPrefix = "clearing.commands."
	EventSubjectPrefix   = "clearing.events."
)

// CommandSubject is the inbound subject of a command type.
func CommandSubject(t event.CommandType) string {
	return CommandSubjectPrefix + string(t)
}

// EventSubject is the outbound subject of a committed command type.
func EventSubject(t event.CommandType) string {
	return EventSubjectPrefix + string(t)
}

// ParseSubject extracts the command type from an inbound subject.
func ParseSubject(subject string) (event.CommandType, error) {
	name, ok := strings.CutPrefix(subject, CommandSubjectPrefix)
	if !ok || name == "" || strings.Contains(name, ".") {
		return "", fmt.Errorf("%w: subject %q", ErrInvalidCommand, subject)
	}
	t := event.CommandType(name)
	if !event.Known(t) {
		return "", fmt.Errorf("%w: unknown command type %q", ErrInvalidCommand, name)
	}
	return t, nil
}

// ParseMessage decodes an inbound message into a command.
func ParseMessage(subject string, data []byte) (event.Command, error) {
	t, err := ParseSubject(subject)
	if err != nil {
		return nil, err
	}
	cmd, err := event.Decode(t, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	return cmd, nil
}
