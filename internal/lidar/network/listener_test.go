package network

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/pointcloud.live/internal/lidar/cloud"
	"github.com/banshee-data/pointcloud.live/internal/lidar/vlp16"
)

// mockStats implements PacketStatsInterface for testing.
type mockStats struct {
	mu          sync.Mutex
	packetCount int
	droppedCnt  int
	pointCount  int
	logCalls    int
}

func (m *mockStats) AddPacket(bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packetCount++
}

func (m *mockStats) AddDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.droppedCnt++
}

func (m *mockStats) AddPoints(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pointCount += count
}

func (m *mockStats) LogStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logCalls++
}

func (m *mockStats) snapshot() (packets, points int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.packetCount, m.pointCount
}

// mockAccumulator records appended batches.
type mockAccumulator struct {
	mu      sync.Mutex
	batches []cloud.Batch
}

func (m *mockAccumulator) Append(batch cloud.Batch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, batch)
}

func (m *mockAccumulator) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

// validPacket builds a fully valid VLP-16 datagram with the given distance
// in every channel slot.
func validPacket(distance uint16) []byte {
	packet := make([]byte, vlp16.PACKET_SIZE)
	for block := 0; block < vlp16.BLOCKS_PER_PACKET; block++ {
		offset := block * vlp16.BLOCK_SIZE
		binary.LittleEndian.PutUint16(packet[offset:], vlp16.BLOCK_HEADER)
		binary.LittleEndian.PutUint16(packet[offset+2:], uint16(block*100))
		for channel := 0; channel < vlp16.CHANNELS_PER_BLOCK; channel++ {
			chOffset := offset + 4 + channel*3
			binary.LittleEndian.PutUint16(packet[chOffset:], distance)
			packet[chOffset+2] = 42
		}
	}
	return packet
}

func TestHandlePacketValid(t *testing.T) {
	stats := &mockStats{}
	acc := &mockAccumulator{}
	listener := NewUDPListener(UDPListenerConfig{
		Stats:       stats,
		Decoder:     vlp16.NewDecoder(nil),
		Accumulator: acc,
	})

	listener.HandlePacket(validPacket(1000))

	packets, points := stats.snapshot()
	if packets != 1 {
		t.Errorf("expected 1 packet counted, got %d", packets)
	}
	if points != vlp16.BLOCKS_PER_PACKET*vlp16.CHANNELS_PER_BLOCK {
		t.Errorf("expected %d points, got %d", vlp16.BLOCKS_PER_PACKET*vlp16.CHANNELS_PER_BLOCK, points)
	}
	if acc.count() != 1 {
		t.Errorf("expected 1 batch appended, got %d", acc.count())
	}
}

func TestHandlePacketWrongSize(t *testing.T) {
	stats := &mockStats{}
	acc := &mockAccumulator{}
	listener := NewUDPListener(UDPListenerConfig{
		Stats:       stats,
		Decoder:     vlp16.NewDecoder(nil),
		Accumulator: acc,
	})

	listener.HandlePacket(make([]byte, 512))

	packets, points := stats.snapshot()
	if packets != 1 {
		t.Errorf("wrong-size packets are still counted as received, got %d", packets)
	}
	if points != 0 {
		t.Errorf("expected no points from a rejected packet, got %d", points)
	}
	if acc.count() != 0 {
		t.Errorf("a rejected packet must not produce a batch, got %d", acc.count())
	}
}

func TestHandlePacketAllBlocksCorrupt(t *testing.T) {
	acc := &mockAccumulator{}
	listener := NewUDPListener(UDPListenerConfig{
		Decoder:     vlp16.NewDecoder(nil),
		Accumulator: acc,
	})

	packet := validPacket(1000)
	for block := 0; block < vlp16.BLOCKS_PER_PACKET; block++ {
		binary.LittleEndian.PutUint16(packet[block*vlp16.BLOCK_SIZE:], 0xDEAD)
	}
	listener.HandlePacket(packet)

	// The empty batch is still appended: it counts as one rotation.
	if acc.count() != 1 {
		t.Fatalf("expected 1 (empty) batch, got %d", acc.count())
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if len(acc.batches[0]) != 0 {
		t.Errorf("expected empty batch, got %d points", len(acc.batches[0]))
	}
}

func TestHandlePacketNoDecoder(t *testing.T) {
	stats := &mockStats{}
	listener := NewUDPListener(UDPListenerConfig{Stats: stats})

	// Raw-forwarding mode: no decoder, no accumulator, must not panic.
	listener.HandlePacket(validPacket(1000))

	packets, _ := stats.snapshot()
	if packets != 1 {
		t.Errorf("expected packet counted without decoder, got %d", packets)
	}
}

func TestListenerEndToEnd(t *testing.T) {
	stats := &mockStats{}
	buffer := cloud.NewRotationBuffer(10)
	listener := NewUDPListener(UDPListenerConfig{
		Address:     "127.0.0.1:0",
		Stats:       stats,
		Decoder:     vlp16.NewDecoder(nil),
		Accumulator: buffer,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- listener.Start(ctx) }()

	// Wait for the socket to come up.
	var addr net.Addr
	for i := 0; i < 100; i++ {
		if addr = listener.LocalAddr(); addr != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == nil {
		t.Fatal("listener did not bind within 1s")
	}

	conn, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatalf("failed to dial listener: %v", err)
	}
	defer conn.Close()

	packet := validPacket(200)
	for i := 0; i < 3; i++ {
		if _, err := conn.Write(packet); err != nil {
			t.Fatalf("failed to send packet: %v", err)
		}
	}

	deadline := time.After(2 * time.Second)
	for buffer.Len() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected 3 rotations, got %d", buffer.Len())
		case <-time.After(10 * time.Millisecond):
		}
	}

	points, ranges := buffer.Snapshot()
	wantPoints := 3 * vlp16.BLOCKS_PER_PACKET * vlp16.CHANNELS_PER_BLOCK
	if len(points) != wantPoints || len(ranges) != wantPoints {
		t.Errorf("expected %d points/ranges, got %d/%d", wantPoints, len(points), len(ranges))
	}
	for i, r := range ranges {
		if r != 1.0 { // distance 200 scales to exactly 1.0
			t.Fatalf("range %d: expected 1.0, got %v", i, r)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("listener did not stop after cancellation")
	}
}

func TestNewUDPListenerDefaults(t *testing.T) {
	listener := NewUDPListener(UDPListenerConfig{})
	if listener.stats == nil {
		t.Error("expected no-op stats when none supplied")
	}
	if listener.logInterval != time.Minute {
		t.Errorf("expected default log interval of 1m, got %v", listener.logInterval)
	}
	if listener.LocalAddr() != nil {
		t.Error("expected nil LocalAddr before Start")
	}
}
