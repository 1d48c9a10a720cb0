package wire

import (
	"strings"

	"github.com/google/gopacket"
)

// Dump decodes a complete transport packet and renders every layer.
func Dump(data []byte) string {
	packet := gopacket.NewPacket(data, LayerTypeTransportPacket, gopacket.Default)
	return packet.String()
}

// Layers returns the names of the layers decoded from a transport packet,
// stopping at the first layer that fails to decode.
func Layers(data []byte) ([]gopacket.LayerType, error) {
	var (
		tp      TransportPacket
		fp      FloodPacket
		sf      StreamFrame
		payload gopacket.Payload
	)
	parser := gopacket.NewDecodingLayerParser(LayerTypeTransportPacket, &tp, &fp, &sf, &payload)
	parser.IgnoreUnsupported = true

	decoded := make([]gopacket.LayerType, 0, 4)
	err := parser.DecodeLayers(data, &decoded)
	return decoded, err
}

// LayerNames joins layer type names with " / ".
func LayerNames(types []gopacket.LayerType) string {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, t.String())
	}
	return strings.Join(names, " / ")
}
