// Package wire implements the three on-air headers as gopacket layers.
//
// All multi-byte fields are big-endian. A transport packet carries one flood
// packet; a broadcast flood packet carries one stream frame:
//
//	TransportPacket: "AT+"(3) | length(1) | payload
//	FloodPacket:     id(16) | type(1) | source(5) | sender(5) | hops(1) | payload
//	StreamFrame:     stream id(2) | frame count(2) | frame index(2) | payload
package wire

import (
	"github.com/google/gopacket"
)

// Layer type numbers live outside gopacket's reserved range.
var (
	LayerTypeTransportPacket = gopacket.RegisterLayerType(12001, gopacket.LayerTypeMetadata{
		Name:    "TransportPacket",
		Decoder: gopacket.DecodeFunc(decodeTransportPacket),
	})
	LayerTypeFloodPacket = gopacket.RegisterLayerType(12002, gopacket.LayerTypeMetadata{
		Name:    "FloodPacket",
		Decoder: gopacket.DecodeFunc(decodeFloodPacket),
	})
	LayerTypeStreamFrame = gopacket.RegisterLayerType(12003, gopacket.LayerTypeMetadata{
		Name:    "StreamFrame",
		Decoder: gopacket.DecodeFunc(decodeStreamFrame),
	})
)

var serializeOpts = gopacket.SerializeOptions{FixLengths: true}

// serialize encodes header followed by payload.
func serialize(header gopacket.SerializableLayer, payload []byte) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, header, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
