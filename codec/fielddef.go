package codec

import (
	"fmt"

	"github.com/lucasjlepore/fit-activity/basetype"
	"github.com/lucasjlepore/fit-activity/profile"
)

const fieldDefinitionSize = 3

// FieldDefinition is one 3-byte field descriptor of a definition record.
// BaseType keeps the byte exactly as written, endian bit included.
type FieldDefinition struct {
	Number   uint8
	Size     uint8
	BaseType basetype.Type
	Name     string
}

// DeveloperFieldDefinition describes a field declared by the file itself
// through field_description messages.
type DeveloperFieldDefinition struct {
	Number             uint8
	Size               uint8
	DeveloperDataIndex uint8
}

// EncodeFieldDefinition writes f at off and returns the following offset.
func EncodeFieldDefinition(f FieldDefinition, buf []byte, off int) (int, error) {
	if off+fieldDefinitionSize > len(buf) {
		return off, fmt.Errorf("%w: no room for field definition at byte %d", ErrTruncated, off)
	}
	buf[off] = f.Number
	buf[off+1] = f.Size
	buf[off+2] = uint8(f.BaseType)
	return off + fieldDefinitionSize, nil
}

// DecodeFieldDefinition reads a descriptor at off and names it from the
// registry. Numbers the registry does not know become "field_<n>".
func DecodeFieldDefinition(reg *profile.Registry, message string, data []byte, off int) (FieldDefinition, error) {
	if off+fieldDefinitionSize > len(data) {
		return FieldDefinition{}, fmt.Errorf("%w: field definition at byte %d", ErrTruncated, off)
	}
	f := FieldDefinition{
		Number:   data[off],
		Size:     data[off+1],
		BaseType: basetype.Type(data[off+2]),
	}
	f.Name = reg.NumberToField(message, f.Number).Name
	return f, nil
}

func encodeDeveloperFieldDefinition(f DeveloperFieldDefinition, buf []byte, off int) (int, error) {
	if off+fieldDefinitionSize > len(buf) {
		return off, fmt.Errorf("%w: no room for developer field definition at byte %d", ErrTruncated, off)
	}
	buf[off] = f.Number
	buf[off+1] = f.Size
	buf[off+2] = f.DeveloperDataIndex
	return off + fieldDefinitionSize, nil
}

func decodeDeveloperFieldDefinition(data []byte, off int) (DeveloperFieldDefinition, error) {
	if off+fieldDefinitionSize > len(data) {
		return DeveloperFieldDefinition{}, fmt.Errorf("%w: developer field definition at byte %d", ErrTruncated, off)
	}
	return DeveloperFieldDefinition{
		Number:             data[off],
		Size:               data[off+1],
		DeveloperDataIndex: data[off+2],
	}, nil
}
