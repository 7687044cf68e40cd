// Package network contains the thin transport wrappers around the decode
// pipeline: the UDP listener, the asynchronous packet forwarder and PCAP
// replay/capture support.
package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/pointcloud.live/internal/lidar/cloud"
	"github.com/banshee-data/pointcloud.live/internal/lidar/vlp16"
	"github.com/banshee-data/pointcloud.live/internal/monitoring"
)

// PacketStatsInterface provides packet statistics management.
type PacketStatsInterface interface {
	AddPacket(bytes int)
	AddDropped()
	AddPoints(count int)
	LogStats()
}

// Decoder parses one raw datagram into its surviving blocks.
type Decoder interface {
	DecodePacket(packet []byte) ([]vlp16.Block, error)
}

// Accumulator receives one rotation batch per successfully decoded packet.
// Appends happen in packet arrival order from a single goroutine.
type Accumulator interface {
	Append(batch cloud.Batch)
}

// Recorder persists raw datagrams for later replay.
type Recorder interface {
	Record(packet []byte) error
}

// UDPListener receives VLP-16 datagrams and drives the decode → project →
// accumulate pipeline, one packet at a time.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	conn        *net.UDPConn
	stats       PacketStatsInterface
	forwarder   *PacketForwarder
	decoder     Decoder
	accumulator Accumulator
	recorder    Recorder
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       PacketStatsInterface
	Forwarder   *PacketForwarder
	Decoder     Decoder
	Accumulator Accumulator
	Recorder    Recorder
}

// NewUDPListener creates a new UDP listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	// Provide a no-op stats implementation when none is supplied to avoid
	// nil checks in the packet handling and logging paths.
	stats := config.Stats
	if stats == nil {
		stats = &noopStats{}
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		stats:       stats,
		forwarder:   config.Forwarder,
		decoder:     config.Decoder,
		accumulator: config.Accumulator,
		recorder:    config.Recorder,
	}
}

// noopStats is a PacketStatsInterface implementation that does nothing.
type noopStats struct{}

func (n *noopStats) AddPacket(bytes int) {}
func (n *noopStats) AddDropped()         {}
func (n *noopStats) AddPoints(count int) {}
func (n *noopStats) LogStats()           {}

// LocalAddr returns the bound address once Start has opened the socket.
func (l *UDPListener) LocalAddr() net.Addr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Start begins listening for UDP packets and processing them. It blocks
// until ctx is cancelled or the socket fails to open.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.conn = conn
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("Warning: failed to set UDP receive buffer to %d: %v", l.rcvBuf, err)
		}
	}

	monitoring.Logf("UDP listener started on %s with receive buffer %d bytes", conn.LocalAddr(), l.rcvBuf)

	if l.forwarder != nil {
		l.forwarder.Start(ctx)
	}

	go l.startStatsLogging(ctx)

	// VLP-16 packets are 1206 bytes; leave margin so oversize datagrams are
	// read whole and rejected by the decoder instead of truncated here.
	buffer := make([]byte, 2048)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP listener stopping due to context cancellation")
			return ctx.Err()
		default:
			// Short read deadline so context cancellation is noticed.
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, _, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				monitoring.Logf("UDP read error: %v", err)
				continue
			}

			l.HandlePacket(buffer[:n])
		}
	}
}

// startStatsLogging periodically logs packet statistics. An initial report
// fires shortly after startup to avoid a long first-run silence.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// HandlePacket runs one datagram through the pipeline: stats, optional
// forward/record, decode, project, append.
//
// A malformed packet degrades gracefully: a wrong-size datagram produces no
// batch, a packet with bad blocks produces a smaller (possibly empty) batch
// that is still appended so the rotation count stays honest.
func (l *UDPListener) HandlePacket(packet []byte) {
	l.stats.AddPacket(len(packet))

	if l.forwarder != nil {
		l.forwarder.ForwardAsync(packet)
	}
	if l.recorder != nil {
		if err := l.recorder.Record(packet); err != nil {
			monitoring.Logf("Failed to record packet: %v", err)
		}
	}

	if l.decoder == nil || l.accumulator == nil {
		return
	}

	blocks, err := l.decoder.DecodePacket(packet)
	if err != nil {
		// Size rejection: already counted by the decoder's diagnostics
		// sink. No batch for this datagram.
		return
	}

	points := vlp16.ProjectBlocks(blocks)
	l.stats.AddPoints(len(points))
	l.accumulator.Append(points)
}

// Close closes the UDP listener and releases resources.
func (l *UDPListener) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
