package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/pointcloud.live/internal/monitoring"
)

// DropStats tracks packets dropped on the forwarding path.
type DropStats interface {
	AddDropped()
}

// PacketForwarder relays received datagrams to another UDP destination
// without blocking the receive loop. Typical use is mirroring the sensor
// stream to a vendor viewer while this service keeps decoding.
type PacketForwarder struct {
	conn        *net.UDPConn
	channel     chan []byte
	stats       DropStats
	logInterval time.Duration
	address     string
}

// NewPacketForwarder creates a forwarder that sends packets to addr:port.
func NewPacketForwarder(addr string, port int, stats DropStats, logInterval time.Duration) (*PacketForwarder, error) {
	forwardAddress := fmt.Sprintf("%s:%d", addr, port)
	udpAddr, err := net.ResolveUDPAddr("udp", forwardAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}

	if logInterval <= 0 {
		logInterval = time.Minute
	}

	return &PacketForwarder{
		conn:        conn,
		channel:     make(chan []byte, 1000),
		stats:       stats,
		logInterval: logInterval,
		address:     forwardAddress,
	}, nil
}

// Start launches the forwarding goroutine. Send errors are counted and
// reported at the log interval rather than per packet.
func (f *PacketForwarder) Start(ctx context.Context) {
	go func() {
		sendErrors := 0
		var lastError error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		monitoring.Logf("Packet forwarding to %s started", f.address)

		for {
			select {
			case <-ctx.Done():
				f.conn.Close()
				return
			case <-ticker.C:
				if sendErrors > 0 {
					monitoring.Logf("Forwarding to %s: %d send errors in last interval (last: %v)",
						f.address, sendErrors, lastError)
					sendErrors = 0
					lastError = nil
				}
			case packet := <-f.channel:
				if _, err := f.conn.Write(packet); err != nil {
					sendErrors++
					lastError = err
				}
			}
		}
	}()
}

// ForwardAsync queues a packet for forwarding. The packet is copied because
// the caller reuses its receive buffer. When the queue is full the packet is
// dropped and counted; the receive loop never blocks on forwarding.
func (f *PacketForwarder) ForwardAsync(packet []byte) {
	packetCopy := make([]byte, len(packet))
	copy(packetCopy, packet)

	select {
	case f.channel <- packetCopy:
	default:
		if f.stats != nil {
			f.stats.AddDropped()
		}
	}
}

// Address returns the forwarding destination.
func (f *PacketForwarder) Address() string {
	return f.address
}
