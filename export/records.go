package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/lucasjlepore/fit-activity/codec"
)

// encMode writes records with Core Deterministic Encoding so the same
// stream always yields the same bytes.
var encMode cbor.EncMode

var zstdEncoder *zstd.Encoder

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("export: CBOR encoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("export: zstd encoder initialization failed: " + err.Error())
	}
}

// Envelopes flattens a decoded stream into record envelopes.
func Envelopes(s *codec.Stream) []RecordEnvelope {
	out := make([]RecordEnvelope, 0, len(s.Records))
	for i, r := range s.Records {
		env := RecordEnvelope{
			Index:  i,
			Offset: int64(s.Offsets[i]),
			Kind:   r.Kind().String(),
		}
		switch r := r.(type) {
		case *codec.Definition:
			env.LocalNumber = r.LocalNumber
			env.GlobalNumber = r.GlobalNumber
			env.Message = r.Name
			env.Architecture = r.Architecture.String()
			env.Fields = make([]FieldEnvelope, len(r.Fields))
			for j, f := range r.Fields {
				env.Fields[j] = FieldEnvelope{
					Number:   f.Number,
					Name:     f.Name,
					Size:     f.Size,
					BaseType: f.BaseType.String(),
				}
			}
			for _, f := range r.DeveloperFields {
				env.DeveloperFields = append(env.DeveloperFields, DeveloperFieldEnvelope{
					Number:             f.Number,
					Size:               f.Size,
					DeveloperDataIndex: f.DeveloperDataIndex,
				})
			}
		case *codec.Data:
			env.LocalNumber = r.LocalNumber
			env.GlobalNumber = r.GlobalNumber
			env.Message = r.Name
			env.Compressed = r.Header.Compressed
			if r.Timestamp != 0 {
				env.Timestamp = r.Timestamp
				env.TimestampUTC = codec.TimeFromFIT(r.Timestamp).Format(time.RFC3339)
			}
			env.Values, env.InvalidFields = dataValues(r)
			if len(r.DeveloperValues) > 0 {
				env.Developer = make(map[string]any, len(r.DeveloperValues))
				for name, v := range r.DeveloperValues {
					env.Developer[name] = finite(v)
				}
			}
		}
		out = append(out, env)
	}
	return out
}

// dataValues maps sentinel values to nil and lists the fields they hit.
func dataValues(d *codec.Data) (map[string]any, []string) {
	values := make(map[string]any, len(d.Values))
	var invalid []string
	for name, v := range d.Values {
		if !d.Valid(name) {
			values[name] = nil
			invalid = append(invalid, name)
			continue
		}
		values[name] = finite(v)
	}
	slices.Sort(invalid)
	return values, invalid
}

// finite replaces NaN and infinities, which JSON cannot carry, with nil.
func finite(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case []float64:
		for _, f := range x {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				out := make([]any, len(x))
				for i, f := range x {
					out[i] = finite(f)
				}
				return out
			}
		}
	}
	return v
}

// MarshalJSONL renders envelopes one JSON object per line.
func MarshalJSONL(records []RecordEnvelope) ([]byte, error) {
	var buf bytes.Buffer
	w := bufio.NewWriterSize(&buf, 1<<20)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return nil, fmt.Errorf("record %d: %w", record.Index, err)
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalCBOR renders envelopes as a CBOR sequence, one data item per
// record.
func MarshalCBOR(records []RecordEnvelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := encMode.NewEncoder(&buf)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return nil, fmt.Errorf("record %d: %w", record.Index, err)
		}
	}
	return buf.Bytes(), nil
}

func compress(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, nil)
}

func marshalRecords(records []RecordEnvelope, format RecordFormat, zst bool) (name string, out []byte, err error) {
	switch format {
	case RecordsJSONL:
		out, err = MarshalJSONL(records)
	case RecordsCBOR:
		out, err = MarshalCBOR(records)
	default:
		return "", nil, fmt.Errorf("unsupported record format %q (expected jsonl|cbor)", format)
	}
	if err != nil {
		return "", nil, err
	}
	name = "records." + string(format)
	if zst {
		name += ".zst"
		out = compress(out)
	}
	return name, out, nil
}
