package vlp16

import "math"

// VerticalAngles holds the fixed vertical beam angles of the VLP-16 in
// degrees, in firing order. A channel slot's vertical angle is
// VerticalAngles[slot % 16]: the sensor fires its 16 lasers twice per block.
var VerticalAngles = [16]float64{-15, 1, -13, 3, -11, 5, -9, 7, -7, 9, -5, 11, -3, 13, -1, 15}

// RANGE_SCALE converts raw sensor distance units into coordinate-space
// lengths. The scaled value doubles as the color-mapping proxy downstream.
const RANGE_SCALE = 200.0

// Point3D is one projected return in sensor-frame Cartesian coordinates.
// ScaledRange is Distance/RANGE_SCALE and is carried alongside the position
// so consumers can color points without re-deriving range.
type Point3D struct {
	X, Y, Z     float64
	ScaledRange float64
}

// Project converts a single raw return into a Cartesian point.
//
// The horizontal angle is the block azimuth in degrees; the vertical angle
// comes from VerticalAngles indexed by channel mod 16. Pure function: a
// distance of 0 (no return) projects to the origin, which is valid output.
func Project(distance uint16, azimuthDeg float64, channel int) Point3D {
	verticalDeg := VerticalAngles[channel%len(VerticalAngles)]

	azimuthRad := azimuthDeg * math.Pi / 180.0
	verticalRad := verticalDeg * math.Pi / 180.0

	scaled := float64(distance) / RANGE_SCALE
	cosVertical := math.Cos(verticalRad)

	return Point3D{
		X:           scaled * cosVertical * math.Cos(azimuthRad),
		Y:           scaled * cosVertical * math.Sin(azimuthRad),
		Z:           scaled * math.Sin(verticalRad),
		ScaledRange: scaled,
	}
}

// ProjectBlocks projects every channel slot of every block, in decode order
// (block order, then channel order within the block). Zero-distance slots
// still contribute an origin point, matching the sensor's "no return"
// convention, so a fully valid packet always yields 12×32 points.
func ProjectBlocks(blocks []Block) []Point3D {
	points := make([]Point3D, 0, len(blocks)*CHANNELS_PER_BLOCK)
	for _, block := range blocks {
		for channelIdx, sample := range block.Channels {
			points = append(points, Project(sample.Distance, block.Azimuth, channelIdx))
		}
	}
	return points
}
