package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/tormoder/fit/dyncrc16"
)

// CRCSize is the width of the file checksum trailer.
const CRCSize = 2

// CRC is the trailing file checksum. Computed covers every byte before the
// trailer.
type CRC struct {
	Stored   uint16
	Computed uint16
}

func (c *CRC) Kind() Kind  { return KindCRC }
func (c *CRC) Length() int { return CRCSize }
func (*CRC) isRecord()     {}

// Valid reports whether the stored checksum matches the data.
func (c *CRC) Valid() bool { return c.Stored == c.Computed }

// Checksum is the FIT CRC-16 of data.
func Checksum(data []byte) uint16 {
	return dyncrc16.Checksum(data)
}

// IsCRC reports whether off is the trailer position of data.
func IsCRC(data []byte, off int) bool {
	return off == len(data)-CRCSize
}

// EncodeCRC writes the checksum of buf[:off] little-endian at off.
func EncodeCRC(buf []byte, off int) (int, error) {
	if off+CRCSize > len(buf) {
		return off, fmt.Errorf("%w: no room for crc at byte %d", ErrTruncated, off)
	}
	binary.LittleEndian.PutUint16(buf[off:], Checksum(buf[:off]))
	return off + CRCSize, nil
}

// DecodeCRC reads the trailer at off and checks it against data[:off].
func DecodeCRC(data []byte, off int) (*CRC, error) {
	if off+CRCSize > len(data) {
		return nil, fmt.Errorf("%w: crc at byte %d", ErrTruncated, off)
	}
	return &CRC{
		Stored:   binary.LittleEndian.Uint16(data[off:]),
		Computed: Checksum(data[:off]),
	}, nil
}
