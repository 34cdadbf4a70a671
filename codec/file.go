// Package codec reads and writes FIT byte streams: a file header, definition
// and data records interleaved under local message numbers, and a trailing
// CRC.
//
// Decode never fails outright. It returns every record it could read and
// reports the first malformed byte in Stream.Err, so a file cut short by a
// crashing recorder still yields its valid prefix.
package codec

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/lucasjlepore/fit-activity/profile"
)

type options struct {
	registry *profile.Registry
	logger   *slog.Logger
	maxBytes int
}

// Option configures Decode, Encode and FileLength.
type Option func(*options)

// WithRegistry resolves names against reg instead of profile.Default().
func WithRegistry(reg *profile.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithLogger sends decode and encode diagnostics to l.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxBytes makes Decode refuse inputs longer than n bytes.
func WithMaxBytes(n int) Option {
	return func(o *options) { o.maxBytes = n }
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = profile.Default()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Stream is the result of Decode. Offsets[i] is the byte position of
// Records[i]. Err is the error that stopped decoding, if any.
type Stream struct {
	Records []Record
	Offsets []int
	Err     error
}

// Header returns the first file header of the stream.
func (s *Stream) Header() *FileHeader {
	for _, r := range s.Records {
		if h, ok := r.(*FileHeader); ok {
			return h
		}
	}
	return nil
}

// CRC returns the trailing checksum record, if one was decoded.
func (s *Stream) CRC() *CRC {
	if len(s.Records) == 0 {
		return nil
	}
	c, _ := s.Records[len(s.Records)-1].(*CRC)
	return c
}

// Messages returns the data records of one message, in stream order.
func (s *Stream) Messages(name string) []*Data {
	var out []*Data
	for _, r := range s.Records {
		if d, ok := r.(*Data); ok && d.Name == name {
			out = append(out, d)
		}
	}
	return out
}

// Count returns how many records of kind k were decoded.
func (s *Stream) Count(k Kind) int {
	n := 0
	for _, r := range s.Records {
		if r.Kind() == k {
			n++
		}
	}
	return n
}

type decodeState struct {
	reg    *profile.Registry
	logger *slog.Logger

	definitions   map[uint8]*Definition
	developer     developerDescriptions
	lastTimestamp uint32
}

// Decode reads data from the start. Records decode until the buffer ends or
// a record is malformed; on error the stream holds the prefix read so far.
func Decode(data []byte, opts ...Option) *Stream {
	o := newOptions(opts)
	s := &Stream{}
	if o.maxBytes > 0 && len(data) > o.maxBytes {
		s.Err = fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), o.maxBytes)
		o.logger.Warn("fit decode refused", "bytes", len(data), "limit", o.maxBytes)
		return s
	}

	st := &decodeState{
		reg:         o.registry,
		logger:      o.logger,
		definitions: make(map[uint8]*Definition),
		developer:   make(developerDescriptions),
	}
	for off := 0; off < len(data); {
		rec, err := st.next(data, off)
		if err != nil {
			s.Err = err
			o.logger.Warn("fit decode stopped", "offset", off, "records", len(s.Records), "err", err)
			break
		}
		s.Records = append(s.Records, rec)
		s.Offsets = append(s.Offsets, off)
		off += rec.Length()
	}
	o.logger.Debug("fit decode finished",
		"records", len(s.Records),
		"definitions", s.Count(KindDefinition),
		"data", s.Count(KindData),
	)
	return s
}

func (st *decodeState) next(data []byte, off int) (Record, error) {
	if IsCRC(data, off) {
		return DecodeCRC(data, off)
	}
	if IsFileHeader(data, off) {
		return DecodeFileHeader(data, off)
	}

	h := DecodeRecordHeader(data[off])
	if h.Definition {
		def, err := DecodeDefinition(st.reg, data, off)
		if err != nil {
			return nil, err
		}
		if _, known := st.reg.Message(def.Name); !known && strings.HasPrefix(def.Name, "message_") {
			st.logger.Debug("unknown global message", "global", def.GlobalNumber, "local", def.LocalNumber, "offset", off)
		}
		st.definitions[def.LocalNumber] = def
		return def, nil
	}

	def, ok := st.definitions[h.LocalNumber]
	if !ok {
		return nil, fmt.Errorf("%w: local %d at byte %d", ErrUnboundLocal, h.LocalNumber, off)
	}
	rec, err := decodeData(def, data, off, st.developer)
	if err != nil {
		return nil, err
	}
	st.stamp(rec, def)
	if desc, ok := st.developer.observe(rec.Name, rec.Values); ok {
		st.logger.Debug("developer field described",
			"index", desc.DeveloperDataIndex, "number", desc.Number, "name", desc.Name, "base_type", desc.BaseType)
	}
	return rec, nil
}

// stamp fills Data.Timestamp, tracking the last full timestamp so compressed
// headers can be resolved against it.
func (st *decodeState) stamp(rec *Data, def *Definition) {
	if rec.Header.Compressed {
		if st.lastTimestamp == 0 {
			return
		}
		offset := uint32(rec.Header.TimeOffset)
		st.lastTimestamp += (offset - st.lastTimestamp&compressedTimeMask) & compressedTimeMask
		rec.Timestamp = st.lastTimestamp
		return
	}
	for _, f := range def.Fields {
		if f.Number != TimestampField {
			continue
		}
		if v, ok := rec.Values[f.Name].(uint64); ok && !f.BaseType.IsInvalid(v) {
			st.lastTimestamp = uint32(v)
			rec.Timestamp = st.lastTimestamp
		}
		return
	}
}

// encodePlan is the result of threading definitions through a record list
// in document order.
type encodePlan struct {
	bound     []*Definition // per record index; set for data records
	developer developerDescriptions
	size      int
}

func plan(records []Record, logger *slog.Logger) (*encodePlan, error) {
	p := &encodePlan{
		bound:     make([]*Definition, len(records)),
		developer: make(developerDescriptions),
	}
	live := make(map[uint8]*Definition)
	for i, rec := range records {
		switch r := rec.(type) {
		case *FileHeader:
			if r == nil {
				continue
			}
			p.size += r.Length()
		case *Definition:
			if r == nil {
				continue
			}
			live[r.LocalNumber] = r
			p.size += r.Length()
		case *Data:
			if r == nil {
				continue
			}
			def, ok := live[r.LocalNumber]
			if !ok {
				return nil, fmt.Errorf("%w: record %d uses local %d", ErrUnboundLocal, i, r.LocalNumber)
			}
			p.bound[i] = def
			p.size += def.DataLength()
		case *CRC:
			if r == nil {
				continue
			}
			p.size += CRCSize
		default:
			logger.Warn("skipping unknown record", "index", i, "type", fmt.Sprintf("%T", rec))
		}
	}
	return p, nil
}

// FileLength returns the encoded size of records without writing them.
func FileLength(records []Record, opts ...Option) (int, error) {
	o := newOptions(opts)
	p, err := plan(records, o.logger)
	if err != nil {
		return 0, err
	}
	return p.size, nil
}

// Encode writes records into an exactly sized buffer. Each data record is
// laid out by the nearest preceding definition with its local number, and
// a CRC record covers every byte before it.
func Encode(records []Record, opts ...Option) ([]byte, error) {
	o := newOptions(opts)
	p, err := plan(records, o.logger)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, p.size)
	off := 0
	for i, rec := range records {
		switch r := rec.(type) {
		case *FileHeader:
			if r != nil {
				off, err = r.Encode(buf, off)
			}
		case *Definition:
			if r != nil {
				off, err = r.Encode(buf, off)
			}
		case *Data:
			if r != nil {
				off, err = encodeData(p.bound[i], r, buf, off, p.developer)
				if err == nil {
					p.developer.observe(p.bound[i].Name, r.Values)
				}
			}
		case *CRC:
			if r != nil {
				off, err = EncodeCRC(buf, off)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	o.logger.Debug("fit encode finished", "records", len(records), "bytes", off)
	return buf, nil
}
