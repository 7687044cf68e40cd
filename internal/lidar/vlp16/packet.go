package vlp16

import (
	"encoding/binary"
	"errors"
	"fmt"
)

/*
VLP-16 LiDAR Packet Decoder

The Velodyne VLP-16 sends fixed-size 1206-byte UDP packets containing
measurements from 16 laser channels organised into 12 data blocks per packet,
generating up to 384 returns per packet.

PACKET STRUCTURE (1206 bytes total):
├── Data Blocks (1200 bytes) - 12 blocks × 100 bytes each, starting at offset 0
│   └── Each block: 2-byte header (0xFFEE) + 2-byte azimuth + 32 channels × 3 bytes (distance + reflectivity)
└── Trailing bytes (6 bytes) - timestamp and factory data [NOT PARSED]

Each 100-byte block carries one shared azimuth and two 16-channel firing
sequences (32 channel slots). Both halves of a block are decoded against the
same block azimuth; the sensor interleaves two firings per block but this
decoder does not interpolate a sub-azimuth for the second half.

DECODE POLICY:
1. Packet validation (size check) - a wrong-size datagram rejects the whole
   packet with ErrPacketSize and produces no blocks.
2. Block header validation (12 iterations) - a block whose header is not
   0xFFEE is skipped and counted as an anomaly; the remaining blocks still
   decode. A single corrupt block never aborts an otherwise valid packet.
3. Channel extraction - 32 × (uint16 little-endian distance, uint8
   reflectivity) per surviving block.

Anomalies are surfaced through the Diagnostics sink, never as per-packet
fatal errors, so a noisy link degrades to fewer points instead of a stalled
pipeline.
*/

// VLP-16 packet structure constants.
// These define the fixed format of UDP packets sent by Velodyne VLP-16 sensors.
const (
	PACKET_SIZE        = 1206                                                                   // Total UDP payload size in bytes
	BLOCKS_PER_PACKET  = 12                                                                     // Number of data blocks per packet
	CHANNELS_PER_BLOCK = 32                                                                     // Channel slots per block (16 lasers fired twice)
	BYTES_PER_CHANNEL  = 3                                                                      // Channel data size: 2 bytes distance + 1 byte reflectivity
	BLOCK_HEADER_SIZE  = 2                                                                      // Block header size (0xFFEE marker)
	AZIMUTH_SIZE       = 2                                                                      // Azimuth field size in each block (2 bytes, little-endian)
	BLOCK_SIZE         = BLOCK_HEADER_SIZE + AZIMUTH_SIZE + CHANNELS_PER_BLOCK*BYTES_PER_CHANNEL // 100 bytes per block
	BLOCK_HEADER       = 0xEEFF                                                                 // 0xFF 0xEE read as a little-endian uint16

	// Physical measurement conversion constants
	AZIMUTH_RESOLUTION = 0.01  // Azimuth unit: 0.01 degrees per LSB
	ROTATION_MAX_UNITS = 36000 // Maximum azimuth value representing 360.00 degrees
)

// ErrPacketSize is returned when a datagram is not exactly PACKET_SIZE bytes.
// The caller discards the datagram and waits for the next one; there is no
// partial decode of short or long packets.
var ErrPacketSize = errors.New("invalid packet size")

// ChannelSample is the raw measurement from one laser channel slot.
type ChannelSample struct {
	Distance     uint16 // Raw distance in hundredths of a length unit (0 = no return)
	Reflectivity uint8  // Laser return intensity (0-255)
}

// Block is one decoded 100-byte firing-sequence record. All 32 channel slots
// share the block azimuth.
type Block struct {
	Azimuth    float64 // Degrees, [0, 360)
	RawAzimuth uint16  // Original wire value in 0.01-degree units
	Channels   [CHANNELS_PER_BLOCK]ChannelSample
}

// Diagnostics receives decode anomaly notifications. Implementations must be
// safe for use from the decode goroutine.
type Diagnostics interface {
	AddBadSize()
	AddBadHeader()
}

// noopDiagnostics is the safe default when no sink is supplied.
type noopDiagnostics struct{}

func (noopDiagnostics) AddBadSize()   {}
func (noopDiagnostics) AddBadHeader() {}

// Decoder decodes VLP-16 datagrams into block records. The zero value is not
// usable; construct with NewDecoder.
type Decoder struct {
	diag Diagnostics
}

// NewDecoder creates a decoder reporting anomalies to diag. A nil diag is
// replaced with a no-op sink.
func NewDecoder(diag Diagnostics) *Decoder {
	if diag == nil {
		diag = noopDiagnostics{}
	}
	return &Decoder{diag: diag}
}

// DecodePacket decodes one 1206-byte datagram into its surviving blocks.
//
// A wrong-size input returns ErrPacketSize (wrapped with the observed size)
// and no blocks. Blocks with a bad header are absent from the result; the
// returned slice is therefore 0 to 12 blocks long, in wire order.
func (d *Decoder) DecodePacket(data []byte) ([]Block, error) {
	if len(data) != PACKET_SIZE {
		d.diag.AddBadSize()
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrPacketSize, PACKET_SIZE, len(data))
	}

	blocks := make([]Block, 0, BLOCKS_PER_PACKET)
	for blockIdx := 0; blockIdx < BLOCKS_PER_PACKET; blockIdx++ {
		offset := blockIdx * BLOCK_SIZE

		header := binary.LittleEndian.Uint16(data[offset : offset+BLOCK_HEADER_SIZE])
		if header != BLOCK_HEADER {
			d.diag.AddBadHeader()
			continue
		}

		rawAzimuth := binary.LittleEndian.Uint16(data[offset+BLOCK_HEADER_SIZE : offset+BLOCK_HEADER_SIZE+AZIMUTH_SIZE])
		block := Block{
			Azimuth:    float64(rawAzimuth) * AZIMUTH_RESOLUTION,
			RawAzimuth: rawAzimuth,
		}

		channelOffset := offset + BLOCK_HEADER_SIZE + AZIMUTH_SIZE
		for i := 0; i < CHANNELS_PER_BLOCK; i++ {
			block.Channels[i] = ChannelSample{
				Distance:     binary.LittleEndian.Uint16(data[channelOffset : channelOffset+2]),
				Reflectivity: data[channelOffset+2],
			}
			channelOffset += BYTES_PER_CHANNEL
		}

		blocks = append(blocks, block)
	}

	return blocks, nil
}
