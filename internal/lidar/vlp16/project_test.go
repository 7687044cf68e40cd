package vlp16

import (
	"math"
	"testing"
)

func TestProjectZeroDistance(t *testing.T) {
	for channel := 0; channel < CHANNELS_PER_BLOCK; channel++ {
		for _, azimuth := range []float64{0, 90, 180, 271.5, 359.99} {
			p := Project(0, azimuth, channel)
			if p.X != 0 || p.Y != 0 || p.Z != 0 || p.ScaledRange != 0 {
				t.Fatalf("Project(0, %.2f, %d) = %+v, expected origin", azimuth, channel, p)
			}
		}
	}
}

func TestProjectKnownValues(t *testing.T) {
	// Channel 1 has a vertical angle of 1 degree; distance 200 raw units is
	// exactly one coordinate-space length unit.
	p := Project(200, 0, 1)

	if p.ScaledRange != 1.0 {
		t.Errorf("expected scaled range 1.0, got %v", p.ScaledRange)
	}

	const tolerance = 1e-6
	if math.Abs(p.X-math.Cos(1*math.Pi/180)) > tolerance {
		t.Errorf("expected x ≈ cos(1°) = 0.99985, got %v", p.X)
	}
	if math.Abs(p.Y) > tolerance {
		t.Errorf("expected y ≈ 0, got %v", p.Y)
	}
	if math.Abs(p.Z-math.Sin(1*math.Pi/180)) > tolerance {
		t.Errorf("expected z ≈ sin(1°) = 0.01745, got %v", p.Z)
	}
}

func TestProjectVerticalAngleSelection(t *testing.T) {
	// Channel slots 16..31 repeat the angles of slots 0..15.
	for channel := 0; channel < 16; channel++ {
		first := Project(500, 123.45, channel)
		second := Project(500, 123.45, channel+16)
		if first != second {
			t.Errorf("channel %d and %d should share a vertical angle: %+v vs %+v",
				channel, channel+16, first, second)
		}
	}

	// Channel 0 looks down 15 degrees: negative z.
	if p := Project(1000, 0, 0); p.Z >= 0 {
		t.Errorf("channel 0 (-15°) should have negative z, got %v", p.Z)
	}
	// Channel 15 looks up 15 degrees: positive z.
	if p := Project(1000, 0, 15); p.Z <= 0 {
		t.Errorf("channel 15 (+15°) should have positive z, got %v", p.Z)
	}
}

func TestProjectIsPure(t *testing.T) {
	a := Project(4321, 217.36, 7)
	b := Project(4321, 217.36, 7)
	if a != b {
		t.Errorf("identical inputs produced different outputs: %+v vs %+v", a, b)
	}
}

func TestProjectBlocksOrderAndCount(t *testing.T) {
	decoder := NewDecoder(nil)
	blocks, err := decoder.DecodePacket(createMockPacket())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	points := ProjectBlocks(blocks)
	if len(points) != BLOCKS_PER_PACKET*CHANNELS_PER_BLOCK {
		t.Fatalf("expected %d points, got %d", BLOCKS_PER_PACKET*CHANNELS_PER_BLOCK, len(points))
	}

	// Points appear in decode order: block 0 channels 0..31, then block 1, ...
	// The mock packet encodes distance = block*100 + channel, so the scaled
	// range at index block*32+channel is (block*100+channel)/200.
	for block := 0; block < BLOCKS_PER_PACKET; block++ {
		for channel := 0; channel < CHANNELS_PER_BLOCK; channel++ {
			idx := block*CHANNELS_PER_BLOCK + channel
			want := float64(block*100+channel) / RANGE_SCALE
			if points[idx].ScaledRange != want {
				t.Fatalf("point %d: expected scaled range %v, got %v", idx, want, points[idx].ScaledRange)
			}
		}
	}
}

func TestProjectBlocksEmpty(t *testing.T) {
	if points := ProjectBlocks(nil); len(points) != 0 {
		t.Errorf("expected no points from no blocks, got %d", len(points))
	}
}
