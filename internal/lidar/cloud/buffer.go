// Package cloud maintains the bounded rolling history of projected rotation
// batches that downstream consumers read as one concatenated point cloud.
package cloud

import (
	"sync"

	"github.com/banshee-data/pointcloud.live/internal/lidar/vlp16"
)

// DefaultCapacity is the number of rotation batches retained when no
// capacity is configured.
const DefaultCapacity = 40000

// Batch is the set of points projected from one packet. Batches are
// immutable once appended; the buffer owns them until eviction.
type Batch []vlp16.Point3D

// RotationBuffer is a fixed-capacity FIFO of rotation batches. Appending at
// capacity evicts exactly the oldest batch. All methods are safe for
// concurrent use, so a snapshot or reset from the HTTP layer can race an
// in-flight append from the listener goroutine.
type RotationBuffer struct {
	mu          sync.Mutex
	batches     []Batch
	capacity    int
	head        int    // next write position
	size        int    // batches currently stored
	totalPoints int    // points across all stored batches
	rotations   uint64 // appends since construction, survives Clear
}

// NewRotationBuffer creates a buffer holding at most capacity batches.
// A capacity below 1 falls back to DefaultCapacity.
func NewRotationBuffer(capacity int) *RotationBuffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &RotationBuffer{
		batches:  make([]Batch, capacity),
		capacity: capacity,
	}
}

// Append stores batch as the newest entry, evicting the oldest entry if the
// buffer is full. An empty batch is a valid rotation and still counts toward
// the rotation total: a packet whose blocks were all rejected contributes a
// no-point rotation rather than being dropped from the bookkeeping.
func (rb *RotationBuffer) Append(batch Batch) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == rb.capacity {
		// head currently points at the oldest batch; overwrite it.
		rb.totalPoints -= len(rb.batches[rb.head])
	} else {
		rb.size++
	}

	rb.batches[rb.head] = batch
	rb.head = (rb.head + 1) % rb.capacity
	rb.totalPoints += len(batch)
	rb.rotations++
}

// Snapshot returns the concatenation of all retained batches, oldest to
// newest, as parallel point and scaled-range slices (points[i] pairs with
// ranges[i]). The result is a copy; later appends or clears do not affect it.
func (rb *RotationBuffer) Snapshot() ([]vlp16.Point3D, []float64) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	points := make([]vlp16.Point3D, 0, rb.totalPoints)
	ranges := make([]float64, 0, rb.totalPoints)

	for i := 0; i < rb.size; i++ {
		idx := (rb.head - rb.size + i + rb.capacity) % rb.capacity
		for _, p := range rb.batches[idx] {
			points = append(points, p)
			ranges = append(ranges, p.ScaledRange)
		}
	}

	return points, ranges
}

// Clear empties the buffer immediately. The lifetime rotation count is
// preserved; only retained batches are released.
func (rb *RotationBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for i := range rb.batches {
		rb.batches[i] = nil
	}
	rb.head = 0
	rb.size = 0
	rb.totalPoints = 0
}

// Len returns the number of batches currently retained.
func (rb *RotationBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size
}

// Capacity returns the fixed maximum number of batches.
func (rb *RotationBuffer) Capacity() int {
	return rb.capacity
}

// PointCount returns the number of points currently retained.
func (rb *RotationBuffer) PointCount() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.totalPoints
}

// Rotations returns the number of batches ever appended.
func (rb *RotationBuffer) Rotations() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.rotations
}
