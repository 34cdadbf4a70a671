package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/lucasjlepore/fit-activity/basetype"
)

// decodeValue interprets raw under base type t. Single elements decode to
// uint64, int64, float64 or string; multi-element fields decode to slices.
// Byte fields, unknown types and sizes that are not a multiple of the
// element width stay as a copy of the raw bytes.
func decodeValue(t basetype.Type, raw []byte, order binary.ByteOrder) any {
	info, ok := basetype.Lookup(t)
	if !ok || info.Type == basetype.Byte || len(raw)%info.Size != 0 || len(raw) == 0 {
		return append([]byte(nil), raw...)
	}
	if info.Kind == basetype.Text {
		for i, b := range raw {
			if b == 0 {
				return string(raw[:i])
			}
		}
		return string(raw)
	}

	count := len(raw) / info.Size
	switch info.Kind {
	case basetype.Signed:
		if count == 1 {
			return readInt(order, raw, info.Size)
		}
		out := make([]int64, count)
		for i := range out {
			out[i] = readInt(order, raw[i*info.Size:], info.Size)
		}
		return out
	case basetype.Float:
		if count == 1 {
			return readFloat(order, raw, info.Size)
		}
		out := make([]float64, count)
		for i := range out {
			out[i] = readFloat(order, raw[i*info.Size:], info.Size)
		}
		return out
	default:
		if count == 1 {
			return readUint(order, raw, info.Size)
		}
		out := make([]uint64, count)
		for i := range out {
			out[i] = readUint(order, raw[i*info.Size:], info.Size)
		}
		return out
	}
}

func readUint(order binary.ByteOrder, b []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(order.Uint16(b))
	case 4:
		return uint64(order.Uint32(b))
	default:
		return order.Uint64(b)
	}
}

func readInt(order binary.ByteOrder, b []byte, width int) int64 {
	switch width {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(order.Uint16(b)))
	case 4:
		return int64(int32(order.Uint32(b)))
	default:
		return int64(order.Uint64(b))
	}
}

func readFloat(order binary.ByteOrder, b []byte, width int) float64 {
	if width == 4 {
		return float64(math.Float32frombits(order.Uint32(b)))
	}
	return math.Float64frombits(order.Uint64(b))
}

func putUint(order binary.ByteOrder, b []byte, width int, v uint64) {
	switch width {
	case 1:
		b[0] = uint8(v)
	case 2:
		order.PutUint16(b, uint16(v))
	case 4:
		order.PutUint32(b, uint32(v))
	default:
		order.PutUint64(b, v)
	}
}

// encodeValue writes v into dst, which is exactly the field's size. A nil v
// writes the "no data" sentinel in every element.
func encodeValue(t basetype.Type, dst []byte, order binary.ByteOrder, v any) error {
	info, ok := basetype.Lookup(t)
	if !ok {
		info = basetype.Info{Type: basetype.Byte, Size: 1, Kind: basetype.Unsigned, Invalid: 0xFF}
	}
	if v == nil {
		fillInvalid(info, dst, order)
		return nil
	}

	if info.Kind == basetype.Text {
		clear(dst)
		switch s := v.(type) {
		case string:
			copy(dst, s)
		case []byte:
			copy(dst, s)
		default:
			return fmt.Errorf("cannot write %T as string", v)
		}
		return nil
	}

	if raw, ok := v.([]byte); ok && (info.Type == basetype.Byte || len(dst)%info.Size != 0) {
		n := copy(dst, raw)
		for i := n; i < len(dst); i++ {
			dst[i] = 0xFF
		}
		return nil
	}
	if len(dst)%info.Size != 0 {
		return fmt.Errorf("field of %d bytes is not a whole number of %s elements", len(dst), info.Name)
	}

	count := len(dst) / info.Size
	elems, err := elements(v)
	if err != nil {
		return err
	}
	if len(elems) > count {
		return fmt.Errorf("%d values do not fit %d %s elements", len(elems), count, info.Name)
	}
	fillInvalid(info, dst, order)
	for i, e := range elems {
		if err := putElement(info, dst[i*info.Size:(i+1)*info.Size], order, e); err != nil {
			return err
		}
	}
	return nil
}

func fillInvalid(info basetype.Info, dst []byte, order binary.ByteOrder) {
	if info.Kind == basetype.Text {
		clear(dst)
		return
	}
	if len(dst)%info.Size != 0 {
		for i := range dst {
			dst[i] = 0xFF
		}
		return
	}
	for i := 0; i < len(dst); i += info.Size {
		putUint(order, dst[i:], info.Size, info.Invalid)
	}
}

// elements flattens a scalar or a slice of any numeric type.
func elements(v any) ([]reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]reflect.Value, rv.Len())
		for i := range out {
			out[i] = rv.Index(i)
			if out[i].Kind() == reflect.Interface {
				out[i] = out[i].Elem()
			}
		}
		return out, nil
	}
	return []reflect.Value{rv}, nil
}

func putElement(info basetype.Info, dst []byte, order binary.ByteOrder, v reflect.Value) error {
	if !v.IsValid() {
		putUint(order, dst, info.Size, info.Invalid)
		return nil
	}
	if info.Kind == basetype.Float {
		var f float64
		switch {
		case v.CanFloat():
			f = v.Float()
		case v.CanInt():
			f = float64(v.Int())
		case v.CanUint():
			f = float64(v.Uint())
		default:
			return fmt.Errorf("cannot write %s as %s", v.Type(), info.Name)
		}
		if math.IsNaN(f) {
			putUint(order, dst, info.Size, info.Invalid)
			return nil
		}
		if info.Size == 4 {
			order.PutUint32(dst, math.Float32bits(float32(f)))
		} else {
			order.PutUint64(dst, math.Float64bits(f))
		}
		return nil
	}

	var bits uint64
	switch {
	case v.CanUint():
		bits = v.Uint()
		if bits > maxInt(info) {
			return fmt.Errorf("%w: %d as %s", ErrValueRange, bits, info.Name)
		}
	case v.CanInt():
		n := v.Int()
		if n < minInt(info) || (n > 0 && uint64(n) > maxInt(info)) {
			return fmt.Errorf("%w: %d as %s", ErrValueRange, n, info.Name)
		}
		bits = uint64(n)
	case v.CanFloat():
		f := v.Float()
		if math.IsNaN(f) {
			bits = info.Invalid
		} else {
			bits = truncateFloat(f)
		}
	case v.Kind() == reflect.Bool:
		if v.Bool() {
			bits = 1
		}
	default:
		return fmt.Errorf("cannot write %s as %s", v.Type(), info.Name)
	}
	putUint(order, dst, info.Size, bits)
	return nil
}

// maxInt is the largest integer an element of info can hold.
func maxInt(info basetype.Info) uint64 {
	bits := uint(info.Size * 8)
	if info.Kind == basetype.Signed {
		bits--
	}
	if bits >= 64 {
		return math.MaxUint64
	}
	return 1<<bits - 1
}

func minInt(info basetype.Info) int64 {
	if info.Kind != basetype.Signed {
		return 0
	}
	if info.Size >= 8 {
		return math.MinInt64
	}
	return -1 << (info.Size*8 - 1)
}

// truncateFloat converts f toward zero and wraps it modulo 2^64, so the low
// bytes match a typed-array store of the same number.
func truncateFloat(f float64) uint64 {
	t := math.Trunc(f)
	if t >= math.MinInt64 && t < math.MaxInt64 {
		return uint64(int64(t))
	}
	if math.IsInf(t, 0) {
		return 0
	}
	const twoTo64 = 18446744073709551616.0
	m := math.Mod(t, twoTo64)
	if m < 0 {
		m += twoTo64
	}
	if m >= twoTo64 {
		return 0
	}
	return uint64(m)
}
