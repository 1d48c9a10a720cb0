package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/uuid"

	"firestige.xyz/floodstack/internal/core"
)

// FloodType identifies the routing mode of a flood packet.
type FloodType uint8

const (
	// FloodTypeBroadcast is the only routing mode implemented.
	FloodTypeBroadcast FloodType = 1
)

func (t FloodType) String() string {
	if t == FloodTypeBroadcast {
		return "broadcast"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// FloodPacket is the router header.
type FloodPacket struct {
	layers.BaseLayer
	ID     core.PacketID
	Type   FloodType
	Source core.Address // Originating node
	Sender core.Address // Last hop
	Hops   uint8        // Relays traversed so far
}

// LayerType returns LayerTypeFloodPacket.
func (f *FloodPacket) LayerType() gopacket.LayerType { return LayerTypeFloodPacket }

// CanDecode returns LayerTypeFloodPacket.
func (f *FloodPacket) CanDecode() gopacket.LayerClass { return LayerTypeFloodPacket }

// NextLayerType returns LayerTypeStreamFrame for broadcasts.
func (f *FloodPacket) NextLayerType() gopacket.LayerType {
	if f.Type == FloodTypeBroadcast {
		return LayerTypeStreamFrame
	}
	return gopacket.LayerTypePayload
}

// DecodeFromBytes decodes the 28-byte router header.
func (f *FloodPacket) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < core.FloodHeaderLen {
		df.SetTruncated()
		return fmt.Errorf("flood packet: %d bytes: %w", len(data), core.ErrMalformed)
	}
	id, err := uuid.FromBytes(data[0:16])
	if err != nil {
		return fmt.Errorf("flood packet id: %w", err)
	}
	f.ID = id
	f.Type = FloodType(data[16])
	f.Source = GetAddress(data[17:22])
	f.Sender = GetAddress(data[22:27])
	f.Hops = data[27]
	f.BaseLayer = layers.BaseLayer{Contents: data[:core.FloodHeaderLen], Payload: data[core.FloodHeaderLen:]}
	return nil
}

// SerializeTo prepends the router header.
func (f *FloodPacket) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	hdr, err := b.PrependBytes(core.FloodHeaderLen)
	if err != nil {
		return err
	}
	copy(hdr[0:16], f.ID[:])
	hdr[16] = byte(f.Type)
	PutAddress(hdr[17:22], f.Source)
	PutAddress(hdr[22:27], f.Sender)
	hdr[27] = f.Hops
	return nil
}

// EncodeFlood encodes a router header followed by payload.
func EncodeFlood(hdr FloodPacket, payload []byte) ([]byte, error) {
	return serialize(&hdr, payload)
}

// PutAddress writes a as 1 high byte followed by 4 big-endian low bytes.
func PutAddress(b []byte, a core.Address) {
	b[0] = byte(a >> 32)
	binary.BigEndian.PutUint32(b[1:5], uint32(a))
}

// GetAddress reads a 5-byte address.
func GetAddress(b []byte) core.Address {
	return core.Address(b[0])<<32 | core.Address(binary.BigEndian.Uint32(b[1:5]))
}

func decodeFloodPacket(data []byte, p gopacket.PacketBuilder) error {
	fp := &FloodPacket{}
	if err := fp.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(fp)
	return p.NextDecoder(fp.NextLayerType())
}
