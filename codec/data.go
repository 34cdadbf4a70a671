package codec

import (
	"fmt"

	"github.com/lucasjlepore/fit-activity/basetype"
)

// TimestampField is the field number FIT reserves for a message timestamp.
const TimestampField uint8 = 253

// Values maps field names to raw values. Decoded values use the canonical
// types uint64, int64, float64, string, []byte and their slices.
type Values map[string]any

// Data is a data record: values laid out by the definition bound to its
// local number.
type Data struct {
	LocalNumber  uint8
	Header       RecordHeader
	Name         string
	GlobalNumber uint16

	Values          Values
	DeveloperValues Values

	// Definition is the layout the record was decoded with. Encoding binds
	// by local number against the stream instead.
	Definition *Definition

	// Timestamp is the absolute FIT timestamp of the record when known,
	// either from its own timestamp field or rebuilt from a compressed
	// header.
	Timestamp uint32
}

func (d *Data) Kind() Kind { return KindData }
func (*Data) isRecord()    {}

// Length is the bound definition's data length, or 0 when unbound.
func (d *Data) Length() int {
	if d.Definition == nil {
		return 0
	}
	return d.Definition.DataLength()
}

// Valid reports whether the named field holds data rather than its base
// type's sentinel.
func (d *Data) Valid(name string) bool {
	v, ok := d.Values[name]
	if !ok {
		v, ok = d.DeveloperValues[name]
		return ok && v != nil
	}
	if d.Definition != nil {
		if f, ok := d.Definition.Field(name); ok {
			return !f.BaseType.IsInvalid(v)
		}
	}
	return v != nil
}

// Uint returns an unsigned value when present and valid.
func (d *Data) Uint(name string) (uint64, bool) {
	if !d.Valid(name) {
		return 0, false
	}
	v, ok := d.Values[name].(uint64)
	return v, ok
}

// DecodeData reads a data record at off against def. Developer values stay
// raw bytes named "developer_<index>_<number>".
func DecodeData(def *Definition, data []byte, off int) (*Data, error) {
	return decodeData(def, data, off, nil)
}

func decodeData(def *Definition, data []byte, off int, devs developerDescriptions) (*Data, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: data at byte %d", ErrUnboundLocal, off)
	}
	if off+def.DataLength() > len(data) {
		return nil, fmt.Errorf("%w: %s data at byte %d needs %d bytes", ErrTruncated, def.Name, off, def.DataLength())
	}
	h := DecodeRecordHeader(data[off])
	if h.Definition {
		return nil, fmt.Errorf("record at byte %d is a definition, not data", off)
	}
	order := def.Architecture.ByteOrder()
	rec := &Data{
		LocalNumber:  h.LocalNumber,
		Header:       h,
		Name:         def.Name,
		GlobalNumber: def.GlobalNumber,
		Values:       make(Values, len(def.Fields)),
		Definition:   def,
	}

	pos := off + 1
	for _, f := range def.Fields {
		rec.Values[f.Name] = decodeValue(f.BaseType, data[pos:pos+int(f.Size)], order)
		pos += int(f.Size)
	}
	if len(def.DeveloperFields) > 0 {
		rec.DeveloperValues = make(Values, len(def.DeveloperFields))
		for _, f := range def.DeveloperFields {
			raw := data[pos : pos+int(f.Size)]
			pos += int(f.Size)
			if desc, ok := devs.lookup(f); ok {
				rec.DeveloperValues[desc.Name] = decodeValue(desc.BaseType, raw, order)
				continue
			}
			rec.DeveloperValues[developerFieldName(f)] = append([]byte(nil), raw...)
		}
	}
	return rec, nil
}

// EncodeData writes d's values at off under def and returns the offset after
// the record. Absent fields get their sentinel.
func EncodeData(def *Definition, d *Data, buf []byte, off int) (int, error) {
	return encodeData(def, d, buf, off, nil)
}

func encodeData(def *Definition, d *Data, buf []byte, off int, devs developerDescriptions) (int, error) {
	if def == nil {
		return off, fmt.Errorf("%w: %d", ErrUnboundLocal, d.LocalNumber)
	}
	n := def.DataLength()
	if off+n > len(buf) {
		return off, fmt.Errorf("%w: no room for %s data at byte %d", ErrTruncated, def.Name, off)
	}
	h := RecordHeader{LocalNumber: def.LocalNumber}
	if d.Header.Compressed {
		h = d.Header
	}
	header, err := EncodeRecordHeader(h)
	if err != nil {
		return off, err
	}
	buf[off] = header

	order := def.Architecture.ByteOrder()
	pos := off + 1
	for _, f := range def.Fields {
		dst := buf[pos : pos+int(f.Size)]
		if err := encodeValue(f.BaseType, dst, order, d.Values[f.Name]); err != nil {
			return off, fmt.Errorf("%s.%s: %w", def.Name, f.Name, err)
		}
		pos += int(f.Size)
	}
	for _, f := range def.DeveloperFields {
		dst := buf[pos : pos+int(f.Size)]
		bt, name := basetype.Byte, developerFieldName(f)
		var v any
		if desc, ok := devs.lookup(f); ok {
			bt = desc.BaseType
			if dv, ok := d.DeveloperValues[desc.Name]; ok {
				v, name = dv, desc.Name
			}
		}
		if raw, ok := d.DeveloperValues[developerFieldName(f)]; v == nil && ok {
			bt, v = basetype.Byte, raw
		}
		if err := encodeValue(bt, dst, order, v); err != nil {
			return off, fmt.Errorf("%s.%s: %w", def.Name, name, err)
		}
		pos += int(f.Size)
	}
	return pos, nil
}

func developerFieldName(f DeveloperFieldDefinition) string {
	return fmt.Sprintf("developer_%d_%d", f.DeveloperDataIndex, f.Number)
}
