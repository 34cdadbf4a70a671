// Package profile is the read-only knowledge base mapping FIT message and
// field numbers to names, sizes, base types and enumerations.
//
// The global tables and the default product layout are embedded YAML loaded
// once per process. A Registry never changes after Load returns, so one
// instance is safe to share between concurrent decodes.
package profile

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lucasjlepore/fit-activity/basetype"
)

//go:embed global.yaml
var globalYAML []byte

// InvalidMessageNumber is returned by lookups for unknown message names.
const InvalidMessageNumber uint16 = 0xFFFF

var (
	// ErrUnknownMessage reports a message name absent from the registry.
	ErrUnknownMessage = errors.New("unknown message")
	// ErrUnknownField reports a field name absent from a message.
	ErrUnknownField = errors.New("unknown field")
)

// FieldSchema describes one field of a message.
type FieldSchema struct {
	Number   uint8
	Name     string
	BaseType basetype.Type
	Size     int // bytes on the wire; a multiple of the base width for arrays
	Scale    float64
	Offset   float64
	Units    string
	Type     string // enumeration name, if any
}

// ToRaw converts a physical value into the stored integer domain.
func (f FieldSchema) ToRaw(physical float64) float64 {
	return (physical + f.Offset) * f.Scale
}

// ToPhysical converts a stored value back into physical units.
func (f FieldSchema) ToPhysical(raw float64) float64 {
	return raw/f.Scale - f.Offset
}

// MessageSchema describes one global message and its fields in profile order.
type MessageSchema struct {
	Number uint16
	Name   string
	Fields []FieldSchema

	byName   map[string]int
	byNumber map[uint8]int
}

// Field looks a field up by name.
func (m *MessageSchema) Field(name string) (FieldSchema, bool) {
	i, ok := m.byName[name]
	if !ok {
		return FieldSchema{}, false
	}
	return m.Fields[i], true
}

// FieldByNumber looks a field up by number.
func (m *MessageSchema) FieldByNumber(number uint8) (FieldSchema, bool) {
	i, ok := m.byNumber[number]
	if !ok {
		return FieldSchema{}, false
	}
	return m.Fields[i], true
}

// EnumType is a named enumeration such as sport or event_type.
type EnumType struct {
	Name     string
	BaseType basetype.Type

	byName  map[string]uint64
	byValue map[uint64]string
}

// Registry is an immutable set of message, field and type tables.
type Registry struct {
	messages      map[string]*MessageSchema
	messageNames  map[uint16]string
	messageNumber map[string]uint16
	types         map[string]*EnumType
}

type rawProfile struct {
	Types    map[string]rawType `yaml:"types"`
	Messages []rawMessage       `yaml:"messages"`
}

type rawType struct {
	BaseType string            `yaml:"base_type"`
	Values   map[string]uint64 `yaml:"values"`
}

type rawMessage struct {
	Name   string     `yaml:"name"`
	Fields []rawField `yaml:"fields"`
}

type rawField struct {
	Name     string  `yaml:"name"`
	Number   uint8   `yaml:"number"`
	BaseType string  `yaml:"base_type"`
	Size     int     `yaml:"size"`
	Scale    float64 `yaml:"scale"`
	Offset   float64 `yaml:"offset"`
	Units    string  `yaml:"units"`
	Type     string  `yaml:"type"`
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r, err := Load(bytes.NewReader(globalYAML))
	if err != nil {
		panic("profile: embedded global profile is invalid: " + err.Error())
	}
	return r
})

// Default returns the process-wide registry built from the embedded tables.
func Default() *Registry {
	return defaultRegistry()
}

// Load parses a profile document. Message numbers come from the mesg_num
// enumeration; every listed message must appear there.
func Load(r io.Reader) (*Registry, error) {
	var raw rawProfile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	reg := &Registry{
		messages:      make(map[string]*MessageSchema, len(raw.Messages)),
		messageNames:  make(map[uint16]string),
		messageNumber: make(map[string]uint16),
		types:         make(map[string]*EnumType, len(raw.Types)),
	}

	for name, rt := range raw.Types {
		bt, err := basetype.Parse(rt.BaseType)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", name, err)
		}
		et := &EnumType{
			Name:     name,
			BaseType: bt,
			byName:   make(map[string]uint64, len(rt.Values)),
			byValue:  make(map[uint64]string, len(rt.Values)),
		}
		for valueName, v := range rt.Values {
			et.byName[valueName] = v
			et.byValue[v] = valueName
		}
		reg.types[name] = et
	}

	mesgNum, ok := reg.types["mesg_num"]
	if !ok {
		return nil, errors.New("profile has no mesg_num type")
	}
	for name, v := range mesgNum.byName {
		reg.messageNames[uint16(v)] = name
		reg.messageNumber[name] = uint16(v)
	}

	for _, rm := range raw.Messages {
		number, ok := reg.messageNumber[rm.Name]
		if !ok {
			return nil, fmt.Errorf("message %s: not in mesg_num", rm.Name)
		}
		ms := &MessageSchema{
			Number:   number,
			Name:     rm.Name,
			Fields:   make([]FieldSchema, 0, len(rm.Fields)),
			byName:   make(map[string]int, len(rm.Fields)),
			byNumber: make(map[uint8]int, len(rm.Fields)),
		}
		for _, rf := range rm.Fields {
			bt, err := basetype.Parse(rf.BaseType)
			if err != nil {
				return nil, fmt.Errorf("message %s field %s: %w", rm.Name, rf.Name, err)
			}
			if _, dup := ms.byNumber[rf.Number]; dup {
				return nil, fmt.Errorf("message %s: duplicate field number %d", rm.Name, rf.Number)
			}
			fs := FieldSchema{
				Number:   rf.Number,
				Name:     rf.Name,
				BaseType: bt,
				Size:     rf.Size,
				Scale:    rf.Scale,
				Offset:   rf.Offset,
				Units:    rf.Units,
				Type:     rf.Type,
			}
			if fs.Size == 0 {
				fs.Size = basetype.SizeOf(bt)
			}
			if fs.Size%basetype.SizeOf(bt) != 0 {
				return nil, fmt.Errorf("message %s field %s: size %d is not a multiple of %s", rm.Name, rf.Name, fs.Size, bt)
			}
			if fs.Scale == 0 {
				fs.Scale = 1
			}
			if fs.Type != "" {
				if _, ok := reg.types[fs.Type]; !ok {
					return nil, fmt.Errorf("message %s field %s: unknown type %q", rm.Name, rf.Name, fs.Type)
				}
			}
			ms.byName[fs.Name] = len(ms.Fields)
			ms.byNumber[fs.Number] = len(ms.Fields)
			ms.Fields = append(ms.Fields, fs)
		}
		reg.messages[rm.Name] = ms
	}

	return reg, nil
}

// NumberToMessageName resolves a global message number. Unknown numbers
// yield "message_<n>".
func (r *Registry) NumberToMessageName(number uint16) string {
	if name, ok := r.messageNames[number]; ok {
		return name
	}
	return fmt.Sprintf("message_%d", number)
}

// MessageNameToNumber resolves a message name. Unknown names return
// InvalidMessageNumber and false.
func (r *Registry) MessageNameToNumber(name string) (uint16, bool) {
	n, ok := r.messageNumber[name]
	if !ok {
		return InvalidMessageNumber, false
	}
	return n, true
}

// Message returns the field layout of a message.
func (r *Registry) Message(name string) (*MessageSchema, bool) {
	m, ok := r.messages[name]
	return m, ok
}

// Field returns the schema of one named field.
func (r *Registry) Field(messageName, fieldName string) (FieldSchema, error) {
	m, ok := r.messages[messageName]
	if !ok {
		return FieldSchema{}, fmt.Errorf("%w: %s", ErrUnknownMessage, messageName)
	}
	f, ok := m.Field(fieldName)
	if !ok {
		return FieldSchema{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, messageName, fieldName)
	}
	return f, nil
}

func (r *Registry) FieldNameToNumber(messageName, fieldName string) (uint8, bool) {
	f, err := r.Field(messageName, fieldName)
	if err != nil {
		return 0, false
	}
	return f.Number, true
}

func (r *Registry) FieldNameToSize(messageName, fieldName string) (int, bool) {
	f, err := r.Field(messageName, fieldName)
	if err != nil {
		return 0, false
	}
	return f.Size, true
}

func (r *Registry) FieldNameToBaseType(messageName, fieldName string) (basetype.Type, bool) {
	f, err := r.Field(messageName, fieldName)
	if err != nil {
		return 0, false
	}
	return f.BaseType, true
}

// NumberToField resolves a field number within a message. Unknown messages
// or numbers yield a placeholder named "field_<n>" with unit scale.
func (r *Registry) NumberToField(messageName string, number uint8) FieldSchema {
	if m, ok := r.messages[messageName]; ok {
		if f, ok := m.FieldByNumber(number); ok {
			return f
		}
	}
	return FieldSchema{
		Number:   number,
		Name:     fmt.Sprintf("field_%d", number),
		BaseType: basetype.Byte,
		Size:     1,
		Scale:    1,
	}
}

// EnumValue resolves a named value of an enumeration, e.g.
// EnumValue("sport", "cycling").
func (r *Registry) EnumValue(typeName, valueName string) (uint64, bool) {
	t, ok := r.types[typeName]
	if !ok {
		return 0, false
	}
	v, ok := t.byName[valueName]
	return v, ok
}

// EnumName resolves a value of an enumeration back to its name.
func (r *Registry) EnumName(typeName string, value uint64) (string, bool) {
	t, ok := r.types[typeName]
	if !ok {
		return "", false
	}
	name, ok := t.byValue[value]
	return name, ok
}

// MessageNames lists the messages with known field layouts, sorted.
func (r *Registry) MessageNames() []string {
	out := make([]string, 0, len(r.messages))
	for name := range r.messages {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
