package codec

import "fmt"

// Kind tags the four record variants of a FIT stream.
type Kind uint8

const (
	KindFileHeader Kind = iota
	KindDefinition
	KindData
	KindCRC
)

func (k Kind) String() string {
	switch k {
	case KindFileHeader:
		return "header"
	case KindDefinition:
		return "definition"
	case KindData:
		return "data"
	case KindCRC:
		return "crc"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Record is one element of a FIT stream. The set of implementations is
// closed: *FileHeader, *Definition, *Data and *CRC.
type Record interface {
	Kind() Kind
	// Length is the number of bytes the record occupies on the wire.
	Length() int
	isRecord()
}
