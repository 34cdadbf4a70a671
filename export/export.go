// Package export turns a decoded FIT stream into an inspection bundle: a
// manifest, the full record stream and a per-sample table.
package export

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/tormoder/fit"
	"github.com/zeebo/blake3"

	"github.com/lucasjlepore/fit-activity/codec"
	"github.com/lucasjlepore/fit-activity/profile"
)

// Bundle is an export held in memory, keyed by file name.
type Bundle struct {
	Manifest Manifest
	Files    map[string][]byte
}

// Names returns the bundle's file names in sorted order.
func (b *Bundle) Names() []string {
	names := make([]string, 0, len(b.Files))
	for name := range b.Files {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (o *Options) defaults() {
	if o.Records == "" {
		o.Records = RecordsJSONL
	}
	if o.Samples == "" {
		o.Samples = SamplesParquet
	}
	if o.Registry == nil {
		o.Registry = profile.Default()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Build renders the bundle for stream s, which was decoded from data.
func Build(s *codec.Stream, data []byte, opts Options) (*Bundle, error) {
	opts.defaults()
	if s == nil {
		return nil, fmt.Errorf("stream is required")
	}

	envelopes := Envelopes(s)
	recordsName, recordsBytes, err := marshalRecords(envelopes, opts.Records, opts.Compress)
	if err != nil {
		return nil, fmt.Errorf("marshal records: %w", err)
	}

	rows := Samples(s, opts.Registry)
	var samplesName string
	var samplesBytes []byte
	switch opts.Samples {
	case SamplesCSV:
		samplesName = "samples.csv"
		samplesBytes, err = MarshalSamplesCSV(rows)
	case SamplesParquet:
		samplesName = "samples.parquet"
		samplesBytes, err = MarshalSamplesParquet(rows)
	default:
		return nil, fmt.Errorf("unsupported sample format %q (expected parquet|csv)", opts.Samples)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal samples: %w", err)
	}

	sum := blake3.Sum256(data)
	manifest := Manifest{
		FormatVersion:    FormatVersion,
		SourceFileName:   opts.SourceFileName,
		SourceBLAKE3:     hex.EncodeToString(sum[:]),
		SourceSizeBytes:  int64(len(data)),
		HeaderCRC:        headerCRC(s, data),
		FileCRC:          fileCRC(s),
		RecordsFile:      recordsName,
		RecordsEncoding:  string(opts.Records),
		SamplesFile:      samplesName,
		RecordCount:      len(s.Records),
		DefinitionCount:  s.Count(codec.KindDefinition),
		DataMessageCount: s.Count(codec.KindData),
		SampleCount:      len(rows),
		DecodedBytes:     decodedBytes(s),
		FileIDProjection: projectFileID(data),
	}
	if h := s.Header(); h != nil {
		manifest.Header = &HeaderInfo{
			Size:            h.Size,
			ProtocolVersion: h.ProtocolVersion,
			ProfileVersion:  h.ProfileVersion,
			DataSize:        h.DataSize,
		}
	}
	if s.Err != nil {
		manifest.DecodeError = s.Err.Error()
	}
	manifest.Warnings = warnings(manifest)
	for _, w := range manifest.Warnings {
		opts.Logger.Warn("export", "warning", w)
	}

	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	manifestBytes = append(manifestBytes, '\n')

	b := &Bundle{
		Manifest: manifest,
		Files: map[string][]byte{
			ManifestName: manifestBytes,
			recordsName:  recordsBytes,
			samplesName:  samplesBytes,
		},
	}
	if opts.CopySource {
		b.Files[SourceName] = data
	}
	return b, nil
}

// Write builds the bundle for s and stores it under dir.
func Write(s *codec.Stream, data []byte, dir string, opts Options) (*Result, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := ensureOutputDir(dir, opts.Overwrite); err != nil {
		return nil, err
	}
	b, err := Build(s, data, opts)
	if err != nil {
		return nil, err
	}
	for _, name := range b.Names() {
		if err := os.WriteFile(filepath.Join(dir, name), b.Files[name], 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}

	res := &Result{
		OutputDir:      dir,
		ManifestPath:   filepath.Join(dir, ManifestName),
		RecordsPath:    filepath.Join(dir, b.Manifest.RecordsFile),
		SamplesPath:    filepath.Join(dir, b.Manifest.SamplesFile),
		RecordCount:    b.Manifest.RecordCount,
		SampleCount:    b.Manifest.SampleCount,
		FileCRCValid:   b.Manifest.FileCRC.Valid,
		HeaderCRCValid: b.Manifest.HeaderCRC.Valid,
		Warnings:       b.Manifest.Warnings,
	}
	if opts.CopySource {
		res.SourceCopyPath = filepath.Join(dir, SourceName)
	}
	return res, nil
}

func ensureOutputDir(path string, overwrite bool) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}
	if len(entries) > 0 && !overwrite {
		return fmt.Errorf("output directory is not empty: %s (set overwrite to allow)", path)
	}
	return nil
}

func hex16(v uint16) string {
	return fmt.Sprintf("0x%04x", v)
}

// headerCRC checks the first header of s. A 12-byte header, or a 14-byte
// header storing zero, carries no checksum and counts as valid.
func headerCRC(s *codec.Stream, data []byte) CRCCheck {
	h := s.Header()
	if h == nil {
		return CRCCheck{}
	}
	if h.Length() != codec.HeaderSize || h.CRC == 0 {
		return CRCCheck{Valid: true}
	}
	check := CRCCheck{
		Present:   true,
		StoredHex: hex16(h.CRC),
		Valid:     h.CRCValid,
	}
	for i, r := range s.Records {
		if r == codec.Record(h) {
			off := s.Offsets[i]
			check.ComputedHex = hex16(codec.Checksum(data[off : off+codec.LegacyHeaderSize]))
			break
		}
	}
	return check
}

func fileCRC(s *codec.Stream) CRCCheck {
	c := s.CRC()
	if c == nil {
		return CRCCheck{}
	}
	return CRCCheck{
		Present:     true,
		StoredHex:   hex16(c.Stored),
		ComputedHex: hex16(c.Computed),
		Valid:       c.Valid(),
	}
}

func decodedBytes(s *codec.Stream) int64 {
	n := len(s.Records)
	if n == 0 {
		return 0
	}
	return int64(s.Offsets[n-1] + s.Records[n-1].Length())
}

// projectFileID reads file_id independently of the codec package.
func projectFileID(data []byte) *FileIDInfo {
	_, id, err := fit.DecodeHeaderAndFileID(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	info := &FileIDInfo{
		Type:         fmt.Sprint(id.Type),
		Manufacturer: fmt.Sprint(id.Manufacturer),
		Product:      fmt.Sprint(id.GetProduct()),
		SerialNumber: id.SerialNumber,
	}
	if !id.TimeCreated.IsZero() {
		info.TimeCreated = id.TimeCreated.UTC().Format(time.RFC3339)
	}
	return info
}

func warnings(m Manifest) []string {
	var out []string
	if m.DecodeError != "" {
		out = append(out, "decoding stopped early: "+m.DecodeError)
	}
	if m.HeaderCRC.Present && !m.HeaderCRC.Valid {
		out = append(out, "header CRC mismatch")
	}
	if !m.FileCRC.Present {
		out = append(out, "file CRC missing")
	} else if !m.FileCRC.Valid {
		out = append(out, "file CRC mismatch")
	}
	if m.SampleCount == 0 {
		out = append(out, "no record samples")
	}
	if m.FileIDProjection == nil {
		out = append(out, "file_id could not be projected")
	}
	return out
}
