package store

import (
	"encoding/json"
	"fmt"
)

// Codec encodes records as JSON and decodes them by kind.
type Codec struct {
	factories map[string]func() Record
}

func NewCodec() *Codec {
	return &Codec{factories: make(map[string]func() Record)}
}

// Register adds a constructor for a record kind.
func (c *Codec) Register(kind string, factory func() Record) {
	c.factories[kind] = factory
}

func (c *Codec) Encode(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.Kind(), err)
	}
	return data, nil
}

func (c *Codec) Decode(kind string, data []byte) (Record, error) {
	factory, ok := c.factories[kind]
	if !ok {
		return nil, fmt.Errorf("decode: unknown record kind %q", kind)
	}
	rec := factory()
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return rec, nil
}
