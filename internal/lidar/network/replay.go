package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/pointcloud.live/internal/monitoring"
)

// PacketHandler consumes one raw sensor datagram. UDPListener satisfies it,
// so replay feeds the same pipeline as live capture.
type PacketHandler interface {
	HandlePacket(packet []byte)
}

// ReplayConfig configures PCAP replay behavior.
type ReplayConfig struct {
	// UDPPort filters the capture to datagrams destined for this port.
	// Zero accepts every UDP packet in the file.
	UDPPort int

	// Realtime replays with inter-packet gaps from the capture timestamps
	// instead of as fast as possible.
	Realtime bool

	// SpeedMultiplier scales real-time replay (1.0 = original timing,
	// 2.0 = double speed). Ignored unless Realtime is set.
	SpeedMultiplier float64
}

// ReplayPCAPFile reads sensor datagrams from a PCAP file and feeds them to
// handler in capture order. The reader is pure Go (pcapgo), so replay works
// without libpcap.
func ReplayPCAPFile(ctx context.Context, pcapFile string, config ReplayConfig, handler PacketHandler) error {
	f, err := os.Open(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to read PCAP header of %s: %w", pcapFile, err)
	}

	speed := config.SpeedMultiplier
	if speed <= 0 {
		speed = 1.0
	}

	packetCount := 0
	replayed := 0
	startTime := time.Now()
	var firstCaptureTime time.Time

	monitoring.Logf("PCAP replay of %s started (port filter: %d, realtime: %v)",
		pcapFile, config.UDPPort, config.Realtime)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("PCAP replay stopping due to context cancellation (processed %d packets)", packetCount)
			return ctx.Err()
		default:
		}

		data, ci, err := reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				monitoring.Logf("PCAP replay complete: %d/%d packets replayed in %v",
					replayed, packetCount, time.Since(startTime))
				return nil
			}
			return fmt.Errorf("failed to read packet %d from %s: %w", packetCount, pcapFile, err)
		}
		packetCount++

		payload, ok := extractUDPPayload(data, reader.LinkType(), config.UDPPort)
		if !ok {
			continue
		}

		if config.Realtime {
			if firstCaptureTime.IsZero() {
				firstCaptureTime = ci.Timestamp
			}
			elapsed := time.Duration(float64(ci.Timestamp.Sub(firstCaptureTime)) / speed)
			if wait := elapsed - time.Since(startTime); wait > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
				}
			}
		}

		handler.HandlePacket(payload)
		replayed++
	}
}

// extractUDPPayload decodes one captured frame and returns the UDP payload
// when the packet matches the port filter.
func extractUDPPayload(data []byte, linkType layers.LinkType, udpPort int) ([]byte, bool) {
	packet := gopacket.NewPacket(data, linkType, gopacket.Default)

	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil, false
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok {
		return nil, false
	}
	if udpPort != 0 && int(udp.DstPort) != udpPort {
		return nil, false
	}
	if len(udp.Payload) == 0 {
		return nil, false
	}
	return udp.Payload, true
}
