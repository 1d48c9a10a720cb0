package wire

import (
	"bytes"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/floodstack/internal/core"
)

// StartMarker opens every transport packet. Kept for compatibility with the
// radio hardware's AT command framing.
var StartMarker = []byte{0x41, 0x54, 0x2B} // "AT+"

// TransportPacket is the innermost framing handed to the byte link.
type TransportPacket struct {
	layers.BaseLayer
	Length uint8 // Payload length, excluding the 4-byte header
}

// LayerType returns LayerTypeTransportPacket.
func (p *TransportPacket) LayerType() gopacket.LayerType { return LayerTypeTransportPacket }

// CanDecode returns LayerTypeTransportPacket.
func (p *TransportPacket) CanDecode() gopacket.LayerClass { return LayerTypeTransportPacket }

// NextLayerType returns LayerTypeFloodPacket.
func (p *TransportPacket) NextLayerType() gopacket.LayerType { return LayerTypeFloodPacket }

// DecodeFromBytes decodes a complete transport packet. Bytes past the declared
// length are ignored.
func (p *TransportPacket) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < core.TransportHeaderLen {
		df.SetTruncated()
		return fmt.Errorf("transport packet: %d bytes: %w", len(data), core.ErrMalformed)
	}
	if !bytes.Equal(data[:len(StartMarker)], StartMarker) {
		return fmt.Errorf("transport packet: missing start marker: %w", core.ErrMalformed)
	}
	p.Length = data[3]
	end := core.TransportHeaderLen + int(p.Length)
	if len(data) < end {
		df.SetTruncated()
		return fmt.Errorf("transport packet: declared %d, have %d: %w", p.Length, len(data)-core.TransportHeaderLen, core.ErrMalformed)
	}
	p.BaseLayer = layers.BaseLayer{Contents: data[:core.TransportHeaderLen], Payload: data[core.TransportHeaderLen:end]}
	return nil
}

// SerializeTo prepends the start marker and length.
func (p *TransportPacket) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	if opts.FixLengths {
		n := len(b.Bytes())
		if n > 0xFF {
			return fmt.Errorf("transport packet: payload %d bytes: %w", n, core.ErrFrameTooLarge)
		}
		p.Length = uint8(n)
	}
	hdr, err := b.PrependBytes(core.TransportHeaderLen)
	if err != nil {
		return err
	}
	copy(hdr, StartMarker)
	hdr[3] = p.Length
	return nil
}

// EncodeTransport wraps payload in a transport packet.
func EncodeTransport(payload []byte) ([]byte, error) {
	return serialize(&TransportPacket{}, payload)
}

// HasStartMarker reports whether b begins with the start marker.
func HasStartMarker(b []byte) bool {
	return bytes.HasPrefix(b, StartMarker)
}

// IsStartMarkerPrefix reports whether b could still grow into a start marker.
func IsStartMarkerPrefix(b []byte) bool {
	if len(b) >= len(StartMarker) {
		return HasStartMarker(b)
	}
	return bytes.Equal(b, StartMarker[:len(b)])
}

func decodeTransportPacket(data []byte, p gopacket.PacketBuilder) error {
	tp := &TransportPacket{}
	if err := tp.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(tp)
	return p.NextDecoder(tp.NextLayerType())
}
