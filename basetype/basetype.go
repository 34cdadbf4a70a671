// Package basetype describes the primitive wire types used by FIT field
// definitions: their byte width, numeric kind and "no data" sentinel.
package basetype

import (
	"fmt"
	"math"
)

// Type is a base type byte exactly as it appears in a field definition.
// Bit 7 flags endian-capable types; the low 5 bits are the type code.
type Type uint8

const (
	Enum    Type = 0x00
	Sint8   Type = 0x01
	Uint8   Type = 0x02
	Sint16  Type = 0x83
	Uint16  Type = 0x84
	Sint32  Type = 0x85
	Uint32  Type = 0x86
	String  Type = 0x07
	Float32 Type = 0x88
	Float64 Type = 0x89
	Uint8z  Type = 0x0A
	Uint16z Type = 0x8B
	Uint32z Type = 0x8C
	Byte    Type = 0x0D
	Sint64  Type = 0x8E
	Uint64  Type = 0x8F
	Uint64z Type = 0x90
)

const codeMask = 0x1F

// Kind is the numeric interpretation of a base type.
type Kind uint8

const (
	Unsigned Kind = iota
	Signed
	Float
	Text
)

func (k Kind) String() string {
	switch k {
	case Unsigned:
		return "unsigned"
	case Signed:
		return "signed"
	case Float:
		return "float"
	case Text:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Info is the static description of one base type.
type Info struct {
	Type    Type
	Name    string
	Size    int
	Kind    Kind
	Invalid uint64 // sentinel bit pattern, per element
}

var infos = [...]Info{
	{Type: Enum, Name: "enum", Size: 1, Kind: Unsigned, Invalid: 0xFF},
	{Type: Sint8, Name: "sint8", Size: 1, Kind: Signed, Invalid: 0x7F},
	{Type: Uint8, Name: "uint8", Size: 1, Kind: Unsigned, Invalid: 0xFF},
	{Type: Sint16, Name: "sint16", Size: 2, Kind: Signed, Invalid: 0x7FFF},
	{Type: Uint16, Name: "uint16", Size: 2, Kind: Unsigned, Invalid: 0xFFFF},
	{Type: Sint32, Name: "sint32", Size: 4, Kind: Signed, Invalid: 0x7FFFFFFF},
	{Type: Uint32, Name: "uint32", Size: 4, Kind: Unsigned, Invalid: 0xFFFFFFFF},
	{Type: String, Name: "string", Size: 1, Kind: Text, Invalid: 0x00},
	{Type: Float32, Name: "float32", Size: 4, Kind: Float, Invalid: 0xFFFFFFFF},
	{Type: Float64, Name: "float64", Size: 8, Kind: Float, Invalid: math.MaxUint64},
	{Type: Uint8z, Name: "uint8z", Size: 1, Kind: Unsigned, Invalid: 0x00},
	{Type: Uint16z, Name: "uint16z", Size: 2, Kind: Unsigned, Invalid: 0x0000},
	{Type: Uint32z, Name: "uint32z", Size: 4, Kind: Unsigned, Invalid: 0x00000000},
	{Type: Byte, Name: "byte", Size: 1, Kind: Unsigned, Invalid: 0xFF},
	{Type: Sint64, Name: "sint64", Size: 8, Kind: Signed, Invalid: 0x7FFFFFFFFFFFFFFF},
	{Type: Uint64, Name: "uint64", Size: 8, Kind: Unsigned, Invalid: math.MaxUint64},
	{Type: Uint64z, Name: "uint64z", Size: 8, Kind: Unsigned, Invalid: 0},
}

var byName = func() map[string]Type {
	m := make(map[string]Type, len(infos))
	for _, info := range infos {
		m[info.Name] = info.Type
	}
	return m
}()

// Lookup returns the description for t. Base type bytes written without the
// endian-capable bit still resolve through their type code.
func Lookup(t Type) (Info, bool) {
	code := int(t & codeMask)
	if code >= len(infos) {
		return Info{}, false
	}
	return infos[code], true
}

// Parse resolves a base type by its profile name ("uint16", "enum", ...).
func Parse(name string) (Type, error) {
	t, ok := byName[name]
	if !ok {
		return 0, fmt.Errorf("unknown base type %q", name)
	}
	return t, nil
}

// Code returns the 5-bit type number.
func (t Type) Code() uint8 {
	return uint8(t & codeMask)
}

// Canonical returns the base type with the endian-capable bit set as the
// FIT profile defines it.
func (t Type) Canonical() Type {
	if info, ok := Lookup(t); ok {
		return info.Type
	}
	return t
}

func (t Type) String() string {
	if info, ok := Lookup(t); ok {
		return info.Name
	}
	return fmt.Sprintf("unknown_0x%02X", uint8(t))
}

// Kind returns the numeric kind; unknown types read as unsigned bytes.
func (t Type) Kind() Kind {
	if info, ok := Lookup(t); ok {
		return info.Kind
	}
	return Unsigned
}

// SizeOf returns the width of one element of t in bytes. Unknown types are
// treated as single bytes.
func SizeOf(t Type) int {
	if info, ok := Lookup(t); ok {
		return info.Size
	}
	return 1
}

// InvalidValueOf returns the per-element "no data" bit pattern of t.
func InvalidValueOf(t Type) uint64 {
	if info, ok := Lookup(t); ok {
		return info.Invalid
	}
	return 0xFF
}

// IsInvalid reports whether a decoded value holds t's sentinel. Arrays are
// invalid only when every element is. Strings are invalid when empty.
func (t Type) IsInvalid(v any) bool {
	sentinel := InvalidValueOf(t)
	switch x := v.(type) {
	case nil:
		return true
	case uint64:
		return x == sentinel
	case int64:
		return uint64(x) == sentinel
	case float64:
		return floatBits(t, x) == sentinel
	case string:
		return x == ""
	case []byte:
		if len(x) == 0 {
			return true
		}
		for _, b := range x {
			if uint64(b) != sentinel {
				return false
			}
		}
		return true
	case []uint64:
		for _, e := range x {
			if e != sentinel {
				return false
			}
		}
		return len(x) > 0
	case []int64:
		for _, e := range x {
			if uint64(e) != sentinel {
				return false
			}
		}
		return len(x) > 0
	case []float64:
		for _, e := range x {
			if floatBits(t, e) != sentinel {
				return false
			}
		}
		return len(x) > 0
	default:
		return false
	}
}

func floatBits(t Type, v float64) uint64 {
	if SizeOf(t) == 4 {
		return uint64(math.Float32bits(float32(v)))
	}
	return math.Float64bits(v)
}
