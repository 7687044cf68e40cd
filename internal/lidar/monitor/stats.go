// Package monitor provides the diagnostics sink for the ingest pipeline and
// the HTTP surface that external tooling (visualisers, dashboards) reads.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/pointcloud.live/internal/monitoring"
)

// StatsSnapshot is a point-in-time view of the ingest rates and anomaly
// totals, suitable for JSON serialisation.
type StatsSnapshot struct {
	PacketsPerSec  float64   `json:"packets_per_sec"`
	MBPerSec       float64   `json:"mb_per_sec"`
	PointsPerSec   float64   `json:"points_per_sec"`
	BadSizeTotal   int64     `json:"bad_size_total"`
	BadHeaderTotal int64     `json:"bad_header_total"`
	DroppedTotal   int64     `json:"dropped_total"`
	Timestamp      time.Time `json:"timestamp"`
}

// PacketStats tracks ingest statistics with thread-safe operations. It
// implements both the listener's stats interface and the decoder's
// Diagnostics sink: every anomaly is counted, none aborts processing.
type PacketStats struct {
	mu          sync.Mutex
	packetCount int64
	byteCount   int64
	pointCount  int64
	lastReset   time.Time

	// Anomaly and drop totals are lifetime counters, not reset per interval,
	// so operators can spot a slowly corrupting link.
	badSizeCount   int64
	badHeaderCount int64
	droppedCount   int64

	latestSnapshot *StatsSnapshot
}

// NewPacketStats creates a new PacketStats instance.
func NewPacketStats() *PacketStats {
	return &PacketStats{lastReset: time.Now()}
}

// AddPacket records one received datagram of the given size.
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddPoints records projected points from one packet.
func (ps *PacketStats) AddPoints(count int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.pointCount += int64(count)
}

// AddDropped records a packet dropped on the forwarding path.
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.droppedCount++
}

// AddBadSize records a datagram rejected for having the wrong length.
func (ps *PacketStats) AddBadSize() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.badSizeCount++
}

// AddBadHeader records a block skipped for a header mismatch.
func (ps *PacketStats) AddBadHeader() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.badHeaderCount++
}

// GetAndReset returns the interval counters and resets them. Anomaly totals
// are lifetime values and are not touched here.
func (ps *PacketStats) GetAndReset() (packets, bytes, points int64, duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ps.lastReset)
	packets = ps.packetCount
	bytes = ps.byteCount
	points = ps.pointCount

	ps.packetCount = 0
	ps.byteCount = 0
	ps.pointCount = 0
	ps.lastReset = now

	return
}

// LogStats logs a one-line rate summary and stores a snapshot for the HTTP
// interface. Quiet intervals (no packets) log nothing.
func (ps *PacketStats) LogStats() {
	packets, bytes, points, duration := ps.GetAndReset()
	if packets == 0 || duration <= 0 {
		return
	}

	packetsPerSec := float64(packets) / duration.Seconds()
	mbPerSec := float64(bytes) / duration.Seconds() / (1024 * 1024)
	pointsPerSec := float64(points) / duration.Seconds()

	ps.mu.Lock()
	ps.latestSnapshot = &StatsSnapshot{
		PacketsPerSec:  packetsPerSec,
		MBPerSec:       mbPerSec,
		PointsPerSec:   pointsPerSec,
		BadSizeTotal:   ps.badSizeCount,
		BadHeaderTotal: ps.badHeaderCount,
		DroppedTotal:   ps.droppedCount,
		Timestamp:      time.Now(),
	}
	badSize := ps.badSizeCount
	badHeader := ps.badHeaderCount
	dropped := ps.droppedCount
	ps.mu.Unlock()

	logMsg := fmt.Sprintf("Lidar stats (/sec): %.2f MB, %.1f packets, %s points",
		mbPerSec, packetsPerSec, FormatWithCommas(int64(pointsPerSec)))
	if badSize > 0 || badHeader > 0 {
		logMsg += fmt.Sprintf(", anomalies: %d bad-size, %d bad-header", badSize, badHeader)
	}
	if dropped > 0 {
		logMsg += fmt.Sprintf(", %d dropped on forward", dropped)
	}
	monitoring.Logf("%s", logMsg)
}

// LatestSnapshot returns the most recent snapshot, or a zero-rate snapshot
// with current anomaly totals if LogStats has not run yet.
func (ps *PacketStats) LatestSnapshot() StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.latestSnapshot != nil {
		return *ps.latestSnapshot
	}
	return StatsSnapshot{
		BadSizeTotal:   ps.badSizeCount,
		BadHeaderTotal: ps.badHeaderCount,
		DroppedTotal:   ps.droppedCount,
		Timestamp:      time.Now(),
	}
}

// AnomalyTotals returns the lifetime bad-size and bad-header counts.
func (ps *PacketStats) AnomalyTotals() (badSize, badHeader int64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.badSizeCount, ps.badHeaderCount
}

// FormatWithCommas formats a number with thousands separators.
func FormatWithCommas(n int64) string {
	if n < 0 {
		return "-" + FormatWithCommas(-n)
	}

	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
