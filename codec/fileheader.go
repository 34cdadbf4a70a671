package codec

import (
	"encoding/binary"
	"fmt"
)

const (
	HeaderSize       = 14
	LegacyHeaderSize = 12

	// ProtocolVersion is protocol 2.0 packed as major<<4 | minor.
	ProtocolVersion uint8 = 0x20
	// DefaultProfileVersion is written by NewFileHeader.
	DefaultProfileVersion uint16 = 2132

	signature       = ".FIT"
	signatureOffset = 8
)

// FileHeader is the fixed structure at the start of a FIT file.
type FileHeader struct {
	Size            uint8 // 12 or 14
	ProtocolVersion uint8
	ProfileVersion  uint16
	DataSize        uint32 // records only, excluding this header and the trailing CRC

	// CRC is the stored header checksum of a decoded 14-byte header; zero
	// means the writer left it out. CRCValid reports whether it matches.
	CRC      uint16
	CRCValid bool
}

// NewFileHeader returns a 14-byte header with default versions.
func NewFileHeader() *FileHeader {
	return &FileHeader{
		Size:            HeaderSize,
		ProtocolVersion: ProtocolVersion,
		ProfileVersion:  DefaultProfileVersion,
	}
}

func (h *FileHeader) Kind() Kind { return KindFileHeader }

// Length is the encoded size. Any size other than 12 encodes as 14 bytes.
func (h *FileHeader) Length() int {
	if h.Size == LegacyHeaderSize {
		return LegacyHeaderSize
	}
	return HeaderSize
}

func (*FileHeader) isRecord() {}

// IsFileHeader reports whether a file header starts at off: a valid size
// byte and the ".FIT" signature at off+8.
func IsFileHeader(data []byte, off int) bool {
	if off < 0 || off+LegacyHeaderSize > len(data) {
		return false
	}
	size := data[off]
	if size != LegacyHeaderSize && size != HeaderSize {
		return false
	}
	return string(data[off+signatureOffset:off+signatureOffset+len(signature)]) == signature
}

// DecodeFileHeader reads a 12 or 14-byte header at off.
func DecodeFileHeader(data []byte, off int) (*FileHeader, error) {
	if off+LegacyHeaderSize > len(data) {
		return nil, fmt.Errorf("%w: file header at byte %d", ErrTruncated, off)
	}
	size := data[off]
	if size != LegacyHeaderSize && size != HeaderSize {
		return nil, fmt.Errorf("%w: size %d at byte %d", ErrHeader, size, off)
	}
	if off+int(size) > len(data) {
		return nil, fmt.Errorf("%w: file header at byte %d needs %d bytes", ErrTruncated, off, size)
	}
	if got := string(data[off+signatureOffset : off+signatureOffset+len(signature)]); got != signature {
		return nil, fmt.Errorf("%w: signature %q at byte %d", ErrHeader, got, off)
	}

	h := &FileHeader{
		Size:            size,
		ProtocolVersion: data[off+1],
		ProfileVersion:  binary.LittleEndian.Uint16(data[off+2:]),
		DataSize:        binary.LittleEndian.Uint32(data[off+4:]),
		CRCValid:        true,
	}
	if size == HeaderSize {
		h.CRC = binary.LittleEndian.Uint16(data[off+LegacyHeaderSize:])
		if h.CRC != 0 {
			h.CRCValid = h.CRC == Checksum(data[off:off+LegacyHeaderSize])
		}
	}
	return h, nil
}

// Encode writes the header at off and returns the offset after it. A 14-byte
// header gets a freshly computed CRC over its first 12 bytes.
func (h *FileHeader) Encode(buf []byte, off int) (int, error) {
	n := h.Length()
	if off+n > len(buf) {
		return off, fmt.Errorf("%w: no room for file header at byte %d", ErrTruncated, off)
	}
	b := buf[off : off+n]
	b[0] = uint8(n)
	b[1] = h.ProtocolVersion
	binary.LittleEndian.PutUint16(b[2:], h.ProfileVersion)
	binary.LittleEndian.PutUint32(b[4:], h.DataSize)
	copy(b[signatureOffset:], signature)
	if n == HeaderSize {
		binary.LittleEndian.PutUint16(b[LegacyHeaderSize:], Checksum(b[:LegacyHeaderSize]))
	}
	return off + n, nil
}
