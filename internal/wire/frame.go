package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/floodstack/internal/core"
)

// StreamFrame is one fragmentation-layer frame.
type StreamFrame struct {
	layers.BaseLayer
	StreamID uint16
	Count    int // Total frames in the stream, 1..65536
	Index    uint16
}

// LayerType returns LayerTypeStreamFrame.
func (s *StreamFrame) LayerType() gopacket.LayerType { return LayerTypeStreamFrame }

// CanDecode returns LayerTypeStreamFrame.
func (s *StreamFrame) CanDecode() gopacket.LayerClass { return LayerTypeStreamFrame }

// NextLayerType returns gopacket.LayerTypePayload.
func (s *StreamFrame) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

// DecodeFromBytes decodes the 6-byte frame header. A count field of 0 means
// 65536 frames, the one value the 2-byte field cannot hold directly.
func (s *StreamFrame) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < core.FrameHeaderLen {
		df.SetTruncated()
		return fmt.Errorf("stream frame: %d bytes: %w", len(data), core.ErrMalformed)
	}
	s.StreamID = binary.BigEndian.Uint16(data[0:2])
	s.Count = int(binary.BigEndian.Uint16(data[2:4]))
	if s.Count == 0 {
		s.Count = core.MaxFramesPerStream
	}
	s.Index = binary.BigEndian.Uint16(data[4:6])
	s.BaseLayer = layers.BaseLayer{Contents: data[:core.FrameHeaderLen], Payload: data[core.FrameHeaderLen:]}
	return nil
}

// SerializeTo prepends the frame header.
func (s *StreamFrame) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	if s.Count < 1 || s.Count > core.MaxFramesPerStream {
		return fmt.Errorf("stream frame: count %d out of range", s.Count)
	}
	hdr, err := b.PrependBytes(core.FrameHeaderLen)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(hdr[0:2], s.StreamID)
	binary.BigEndian.PutUint16(hdr[2:4], uint16(s.Count)) // 65536 wraps to 0
	binary.BigEndian.PutUint16(hdr[4:6], s.Index)
	return nil
}

// EncodeFrame encodes a frame header followed by payload.
func EncodeFrame(hdr StreamFrame, payload []byte) ([]byte, error) {
	return serialize(&hdr, payload)
}

func decodeStreamFrame(data []byte, p gopacket.PacketBuilder) error {
	sf := &StreamFrame{}
	if err := sf.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(sf)
	return p.NextDecoder(sf.NextLayerType())
}
