// Package address derives the deterministic record keys used by the clearing
// store and renders them in base58.
package address

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const (
	Size        = 32
	MaxSeeds    = 16
	MaxSeedSize = 32

	derivationMarker = "ProgramDerivedAddress"
)

var (
	ErrSeedTooLong   = errors.New("address: seed longer than 32 bytes")
	ErrTooManySeeds  = errors.New("address: more than 16 seeds")
	ErrNoOffCurveKey = errors.New("address: no off-curve bump found")
)

// Address is a 32-byte identity: a user key, a vault or a record key.
type Address [Size]byte

// Zero is the empty address.
var Zero Address

func (a Address) String() string { return base58.Encode(a[:]) }

func (a Address) IsZero() bool { return a == Zero }

// Bytes returns a copy of the raw key.
func (a Address) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, a[:])
	return b
}

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Parse decodes a base58 address.
func Parse(s string) (Address, error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return Zero, fmt.Errorf("address: decode %q: %w", s, err)
	}
	if len(decoded) != Size {
		return Zero, fmt.Errorf("address: %q decodes to %d bytes, want %d", s, len(decoded), Size)
	}
	var a Address
	copy(a[:], decoded)
	return a, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromSeed returns sha256(label) as an address. Used for fixed identities
// such as the program id and test keys.
func FromSeed(label string) Address {
	return Address(sha256.Sum256([]byte(label)))
}

// U64Seed encodes v little-endian for use as a derivation seed.
func U64Seed(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// OnCurve reports whether b decodes as an ed25519 point. Derived record keys
// are required to be off the curve so that no private key can sign for them.
func OnCurve(b []byte) bool {
	if len(b) != Size {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// CreateWithBump hashes the seeds, bump and program id into a key. It fails
// if the result lies on the curve.
func CreateWithBump(program Address, bump uint8, seeds ...[]byte) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Zero, ErrTooManySeeds
	}
	h := sha256.New()
	for _, s := range seeds {
		if len(s) > MaxSeedSize {
			return Zero, ErrSeedTooLong
		}
		h.Write(s)
	}
	h.Write([]byte{bump})
	h.Write(program[:])
	h.Write([]byte(derivationMarker))

	var a Address
	copy(a[:], h.Sum(nil))
	if OnCurve(a[:]) {
		return Zero, ErrNoOffCurveKey
	}
	return a, nil
}

// Derive searches bumps from 255 down and returns the first off-curve key.
func Derive(program Address, seeds ...[]byte) (Address, uint8, error) {
	if len(seeds) > MaxSeeds-1 {
		return Zero, 0, ErrTooManySeeds
	}
	for bump := 255; bump >= 0; bump-- {
		a, err := CreateWithBump(program, uint8(bump), seeds...)
		if err == nil {
			return a, uint8(bump), nil
		}
		if !errors.Is(err, ErrNoOffCurveKey) {
			return Zero, 0, err
		}
	}
	return Zero, 0, ErrNoOffCurveKey
}
