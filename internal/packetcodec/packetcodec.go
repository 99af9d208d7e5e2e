// Package packetcodec decodes the outer framing of the opaque bytes
// carried by a Packet event (§3.2, Packet payload) so that collaborators
// above the core (e.g. a bandwidth scheduler or a pcap exporter) can
// inspect addressing without the core itself understanding payloads.
package packetcodec

import (
	"fmt"
	"net"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// Addressing is the subset of a decoded packet's headers the rest of the
// system is allowed to look at; everything past L4 stays opaque.
type Addressing struct {
	SrcMAC, DstMAC net.HardwareAddr
	SrcIP, DstIP   net.IP
	Protocol       string
	SrcPort        uint16
	DstPort        uint16
	Length         int
}

// Decode parses data as an Ethernet frame and extracts addressing down
// through TCP/UDP, ignoring anything it doesn't recognize rather than
// erroring, since guest payloads are free-form.
func Decode(data []byte) (Addressing, error) {
	var a Addressing
	if len(data) == 0 {
		return a, fmt.Errorf("packetcodec: empty packet")
	}

	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	if ethLayer := pkt.Layer(layers.LayerTypeEthernet); ethLayer != nil {
		eth := ethLayer.(*layers.Ethernet)
		a.SrcMAC = eth.SrcMAC
		a.DstMAC = eth.DstMAC
		a.Length = len(eth.Payload) + 14
	}
	if ipLayer := pkt.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		ip := ipLayer.(*layers.IPv4)
		a.SrcIP = ip.SrcIP
		a.DstIP = ip.DstIP
		a.Protocol = ip.Protocol.String()
		a.Length = int(ip.Length)
	}
	if ip6Layer := pkt.Layer(layers.LayerTypeIPv6); ip6Layer != nil {
		ip6 := ip6Layer.(*layers.IPv6)
		a.SrcIP = ip6.SrcIP
		a.DstIP = ip6.DstIP
		a.Protocol = ip6.NextHeader.String()
	}
	if tcpLayer := pkt.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		a.SrcPort = uint16(tcp.SrcPort)
		a.DstPort = uint16(tcp.DstPort)
	}
	if udpLayer := pkt.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		a.SrcPort = uint16(udp.SrcPort)
		a.DstPort = uint16(udp.DstPort)
	}
	return a, nil
}

// Encode builds a minimal Ethernet+IPv4+UDP frame carrying payload, for
// tests and collaborators that need to synthesize a Packet event from
// addressing rather than parse one.
func Encode(a Addressing, payload []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       a.SrcMAC,
		DstMAC:       a.DstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		SrcIP:    a.SrcIP,
		DstIP:    a.DstIP,
		Protocol: layers.IPProtocolUDP,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(a.SrcPort),
		DstPort: layers.UDPPort(a.DstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, fmt.Errorf("packetcodec: set checksum layer: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("packetcodec: serialize: %w", err)
	}
	return buf.Bytes(), nil
}
