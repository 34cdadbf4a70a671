package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/lucasjlepore/fit-activity/profile"
)

// definitionFixedSize covers header, reserved, architecture, global number
// and field count.
const definitionFixedSize = 6

// Architecture selects the byte order of every multi-byte value under a
// definition, including the definition's own global message number.
type Architecture uint8

const (
	LittleEndian Architecture = 0
	BigEndian    Architecture = 1
)

func (a Architecture) ByteOrder() binary.ByteOrder {
	if a == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (a Architecture) String() string {
	switch a {
	case LittleEndian:
		return "little"
	case BigEndian:
		return "big"
	default:
		return fmt.Sprintf("architecture(%d)", uint8(a))
	}
}

// ParseArchitecture maps "little", "big" or "" (little) to an Architecture.
func ParseArchitecture(s string) (Architecture, error) {
	switch s {
	case "", "little":
		return LittleEndian, nil
	case "big":
		return BigEndian, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrArchitecture, s)
	}
}

// Definition declares the wire layout of the data records that follow it
// under the same local number.
type Definition struct {
	LocalNumber     uint8
	GlobalNumber    uint16
	Name            string
	Architecture    Architecture
	Fields          []FieldDefinition
	DeveloperFields []DeveloperFieldDefinition

	// DeveloperData mirrors the header flag. A decoded definition may set
	// it with zero developer fields; encoding sets the flag whenever this
	// is true or DeveloperFields is non-empty.
	DeveloperData bool
}

func (d *Definition) Kind() Kind { return KindDefinition }
func (*Definition) isRecord()    {}

func (d *Definition) hasDeveloperData() bool {
	return d.DeveloperData || len(d.DeveloperFields) > 0
}

// Length is 6 + 3 per field, plus 1 + 3 per developer field when the
// developer flag is set.
func (d *Definition) Length() int {
	n := definitionFixedSize + fieldDefinitionSize*len(d.Fields)
	if d.hasDeveloperData() {
		n += 1 + fieldDefinitionSize*len(d.DeveloperFields)
	}
	return n
}

// DataLength is the size of one data record bound to d.
func (d *Definition) DataLength() int {
	n := 1
	for _, f := range d.Fields {
		n += int(f.Size)
	}
	for _, f := range d.DeveloperFields {
		n += int(f.Size)
	}
	return n
}

// Field returns the descriptor with the given name.
func (d *Definition) Field(name string) (FieldDefinition, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// NewDefinition builds a definition from symbolic names, taking numbers,
// sizes and base types from the registry.
func NewDefinition(reg *profile.Registry, message string, fieldNames []string, local uint8) (*Definition, error) {
	if local > MaxLocalNumber {
		return nil, fmt.Errorf("%w: local number %d > %d", ErrLocalNumberRange, local, MaxLocalNumber)
	}
	global, ok := reg.MessageNameToNumber(message)
	if !ok {
		return nil, fmt.Errorf("%w: %s", profile.ErrUnknownMessage, message)
	}
	def := &Definition{
		LocalNumber:  local,
		GlobalNumber: global,
		Name:         message,
		Fields:       make([]FieldDefinition, 0, len(fieldNames)),
	}
	for _, name := range fieldNames {
		fs, err := reg.Field(message, name)
		if err != nil {
			return nil, err
		}
		if fs.Size > 255 {
			return nil, fmt.Errorf("field %s.%s: size %d does not fit a definition", message, name, fs.Size)
		}
		def.Fields = append(def.Fields, FieldDefinition{
			Number:   fs.Number,
			Size:     uint8(fs.Size),
			BaseType: fs.BaseType,
			Name:     fs.Name,
		})
	}
	return def, nil
}

// DecodeDefinition reads a definition record starting with its header byte
// at off.
func DecodeDefinition(reg *profile.Registry, data []byte, off int) (*Definition, error) {
	if off+definitionFixedSize > len(data) {
		return nil, fmt.Errorf("%w: definition at byte %d", ErrTruncated, off)
	}
	h := DecodeRecordHeader(data[off])
	if h.Compressed || !h.Definition {
		return nil, fmt.Errorf("record at byte %d is not a definition (header 0x%02X)", off, data[off])
	}
	arch := Architecture(data[off+2])
	if arch != LittleEndian && arch != BigEndian {
		return nil, fmt.Errorf("%w: %d at byte %d", ErrArchitecture, data[off+2], off+2)
	}
	def := &Definition{
		LocalNumber:   h.LocalNumber,
		Architecture:  arch,
		GlobalNumber:  arch.ByteOrder().Uint16(data[off+3:]),
		DeveloperData: h.DeveloperData,
	}
	def.Name = reg.NumberToMessageName(def.GlobalNumber)

	count := int(data[off+5])
	pos := off + definitionFixedSize
	def.Fields = make([]FieldDefinition, 0, count)
	for i := 0; i < count; i++ {
		f, err := DecodeFieldDefinition(reg, def.Name, data, pos)
		if err != nil {
			return nil, err
		}
		def.Fields = append(def.Fields, f)
		pos += fieldDefinitionSize
	}

	if h.DeveloperData {
		if pos >= len(data) {
			return nil, fmt.Errorf("%w: developer field count at byte %d", ErrTruncated, pos)
		}
		devCount := int(data[pos])
		pos++
		for i := 0; i < devCount; i++ {
			f, err := decodeDeveloperFieldDefinition(data, pos)
			if err != nil {
				return nil, err
			}
			def.DeveloperFields = append(def.DeveloperFields, f)
			pos += fieldDefinitionSize
		}
	}
	return def, nil
}

// Encode writes d at off in its own architecture and returns the offset
// after it.
func (d *Definition) Encode(buf []byte, off int) (int, error) {
	if off+d.Length() > len(buf) {
		return off, fmt.Errorf("%w: no room for definition at byte %d", ErrTruncated, off)
	}
	if d.Architecture != LittleEndian && d.Architecture != BigEndian {
		return off, fmt.Errorf("%w: %d", ErrArchitecture, uint8(d.Architecture))
	}
	if len(d.Fields) > 255 || len(d.DeveloperFields) > 255 {
		return off, fmt.Errorf("definition %s has too many fields", d.Name)
	}
	header, err := EncodeRecordHeader(RecordHeader{
		Definition:    true,
		DeveloperData: d.hasDeveloperData(),
		LocalNumber:   d.LocalNumber,
	})
	if err != nil {
		return off, err
	}
	buf[off] = header
	buf[off+1] = 0
	buf[off+2] = uint8(d.Architecture)
	d.Architecture.ByteOrder().PutUint16(buf[off+3:], d.GlobalNumber)
	buf[off+5] = uint8(len(d.Fields))

	pos := off + definitionFixedSize
	for _, f := range d.Fields {
		if pos, err = EncodeFieldDefinition(f, buf, pos); err != nil {
			return off, err
		}
	}
	if d.hasDeveloperData() {
		buf[pos] = uint8(len(d.DeveloperFields))
		pos++
		for _, f := range d.DeveloperFields {
			if pos, err = encodeDeveloperFieldDefinition(f, buf, pos); err != nil {
				return off, err
			}
		}
	}
	return pos, nil
}
