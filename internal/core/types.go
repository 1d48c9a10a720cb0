// Package core defines core types shared by every protocol layer.
package core

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Address is a 40-bit node address, wide enough for a phone number.
type Address uint64

const (
	// AddressBits is the width of an address on the wire.
	AddressBits = 40
	// AddressLen is the encoded address size: 1 high byte + 4 low bytes.
	AddressLen = 5
	// MaxAddress is the largest encodable address.
	MaxAddress Address = 1<<AddressBits - 1
	// Broadcast addresses every node. It is never a valid local address.
	Broadcast = MaxAddress
)

// Valid reports whether a fits in 40 bits.
func (a Address) Valid() bool {
	return a <= MaxAddress
}

// String formats the address in decimal, or "broadcast".
func (a Address) String() string {
	if a == Broadcast {
		return "broadcast"
	}
	return strconv.FormatUint(uint64(a), 10)
}

// ParseAddress parses a decimal address.
func ParseAddress(s string) (Address, error) {
	if s == "broadcast" {
		return Broadcast, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse address %q: %w", s, err)
	}
	a := Address(v)
	if !a.Valid() {
		return 0, fmt.Errorf("address %d exceeds %d bits", v, AddressBits)
	}
	return a, nil
}

// PacketID is the globally unique 128-bit identity of a router packet.
type PacketID = uuid.UUID

// NewPacketID returns a fresh random packet id.
func NewPacketID() PacketID {
	return uuid.New()
}
