// Package recorder captures raw sensor datagrams to standard PCAP files so
// field sessions can be replayed through the same pipeline later.
package recorder

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/google/uuid"

	"github.com/banshee-data/pointcloud.live/internal/monitoring"
)

// FileExtension is the extension for capture files.
const FileExtension = ".pcap"

// snapLen must cover a synthetic Ethernet+IPv4+UDP frame around a 1206-byte
// payload with room to spare.
const snapLen = 2048

// Recorder writes received datagrams into a PCAP file. Each datagram is
// wrapped in a synthetic Ethernet/IPv4/UDP frame so the capture is readable
// by standard tools and by ReplayPCAPFile.
type Recorder struct {
	mu          sync.Mutex
	file        *os.File
	writer      *pcapgo.Writer
	captureID   string
	path        string
	udpPort     int
	packetCount uint64
	closed      bool
}

// NewRecorder creates a capture file in dir, named by a fresh capture ID.
// udpPort becomes the destination port of the synthetic frames, so replay
// port filters match the live configuration.
func NewRecorder(dir string, udpPort int) (*Recorder, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}

	captureID := uuid.New().String()
	path := filepath.Join(dir, "vlp16_"+captureID+FileExtension)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}

	writer := pcapgo.NewWriter(f)
	if err := writer.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write capture header: %w", err)
	}

	monitoring.Logf("Recording raw packets to %s (capture %s)", path, captureID)

	return &Recorder{
		file:      f,
		writer:    writer,
		captureID: captureID,
		path:      path,
		udpPort:   udpPort,
	}, nil
}

// Record writes one datagram to the capture file.
func (r *Recorder) Record(payload []byte) error {
	frame, err := r.frame(payload)
	if err != nil {
		return fmt.Errorf("failed to frame packet: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("recorder is closed")
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if err := r.writer.WritePacket(ci, frame); err != nil {
		return fmt.Errorf("failed to write packet to capture: %w", err)
	}
	r.packetCount++
	return nil
}

// frame wraps a datagram in Ethernet/IPv4/UDP headers. The addresses are
// fixed placeholders; only the destination port carries meaning.
func (r *Recorder) frame(payload []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 1, 201),
		DstIP:    net.IPv4(192, 168, 1, 1),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(2368),
		DstPort: layers.UDPPort(r.udpPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CaptureID returns the unique identifier of this capture session.
func (r *Recorder) CaptureID() string {
	return r.captureID
}

// Path returns the capture file location.
func (r *Recorder) Path() string {
	return r.path
}

// PacketCount returns the number of datagrams written so far.
func (r *Recorder) PacketCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.packetCount
}

// Close flushes and closes the capture file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	monitoring.Logf("Capture %s closed: %d packets in %s", r.captureID, r.packetCount, r.path)
	return r.file.Close()
}
