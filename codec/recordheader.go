package codec

import "fmt"

const (
	compressedHeaderMask = 0x80
	definitionMask       = 0x40
	developerDataMask    = 0x20
	localNumberMask      = 0x0F
	compressedLocalMask  = 0x60
	compressedTimeMask   = 0x1F

	// MaxLocalNumber is the highest local message number a normal header
	// can address.
	MaxLocalNumber = 15
	// MaxCompressedLocalNumber is the highest local number a compressed
	// timestamp header can address.
	MaxCompressedLocalNumber = 3
)

// RecordHeader is the leading byte of every definition or data record.
type RecordHeader struct {
	Definition    bool
	DeveloperData bool
	LocalNumber   uint8

	// Compressed headers carry a 5-bit rolling time offset instead of the
	// definition and developer flags. Only data records use them.
	Compressed bool
	TimeOffset uint8
}

// EncodeRecordHeader packs h into one byte.
func EncodeRecordHeader(h RecordHeader) (byte, error) {
	if h.Compressed {
		if h.Definition {
			return 0, fmt.Errorf("%w: compressed header cannot start a definition", ErrLocalNumberRange)
		}
		if h.LocalNumber > MaxCompressedLocalNumber {
			return 0, fmt.Errorf("%w: compressed local number %d > %d", ErrLocalNumberRange, h.LocalNumber, MaxCompressedLocalNumber)
		}
		return compressedHeaderMask | h.LocalNumber<<5 | h.TimeOffset&compressedTimeMask, nil
	}
	if h.LocalNumber > MaxLocalNumber {
		return 0, fmt.Errorf("%w: local number %d > %d", ErrLocalNumberRange, h.LocalNumber, MaxLocalNumber)
	}
	b := h.LocalNumber
	if h.Definition {
		b |= definitionMask
	}
	if h.DeveloperData {
		b |= developerDataMask
	}
	return b, nil
}

// DecodeRecordHeader unpacks a record header byte. The local number is
// always in range since only four (or two) bits carry it.
func DecodeRecordHeader(b byte) RecordHeader {
	if b&compressedHeaderMask != 0 {
		return RecordHeader{
			Compressed:  true,
			LocalNumber: (b & compressedLocalMask) >> 5,
			TimeOffset:  b & compressedTimeMask,
		}
	}
	return RecordHeader{
		Definition:    b&definitionMask != 0,
		DeveloperData: b&developerDataMask != 0,
		LocalNumber:   b & localNumberMask,
	}
}
