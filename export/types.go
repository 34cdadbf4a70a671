package export

import (
	"log/slog"

	"github.com/lucasjlepore/fit-activity/profile"
)

const (
	// FormatVersion identifies the on-disk schema of an export bundle.
	FormatVersion = "fit_activity_bundle_v1"

	ManifestName = "manifest.json"
	SourceName   = "source.fit"
)

// RecordFormat selects how the record stream is serialized.
type RecordFormat string

const (
	RecordsJSONL RecordFormat = "jsonl"
	RecordsCBOR  RecordFormat = "cbor"
)

// SampleFormat selects the table format of the per-record samples.
type SampleFormat string

const (
	SamplesParquet SampleFormat = "parquet"
	SamplesCSV     SampleFormat = "csv"
)

// Options controls what a bundle contains.
type Options struct {
	// Overwrite allows writing into a non-empty output directory.
	Overwrite bool

	// CopySource adds a byte-for-byte copy of the input as source.fit.
	CopySource bool

	Records RecordFormat // default jsonl
	Samples SampleFormat // default parquet

	// Compress wraps the record stream in zstd and appends ".zst".
	Compress bool

	// SourceFileName is recorded in the manifest.
	SourceFileName string

	Registry *profile.Registry
	Logger   *slog.Logger
}

// Result describes a bundle written to disk.
type Result struct {
	OutputDir      string   `json:"output_dir"`
	ManifestPath   string   `json:"manifest_path"`
	RecordsPath    string   `json:"records_path"`
	SamplesPath    string   `json:"samples_path"`
	SourceCopyPath string   `json:"source_copy_path,omitempty"`
	RecordCount    int      `json:"record_count"`
	SampleCount    int      `json:"sample_count"`
	FileCRCValid   bool     `json:"file_crc_valid"`
	HeaderCRCValid bool     `json:"header_crc_valid"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Manifest captures bundle metadata and the names of its other files.
type Manifest struct {
	FormatVersion    string      `json:"format_version"`
	SourceFileName   string      `json:"source_file_name,omitempty"`
	SourceBLAKE3     string      `json:"source_blake3"`
	SourceSizeBytes  int64       `json:"source_size_bytes"`
	Header           *HeaderInfo `json:"header,omitempty"`
	HeaderCRC        CRCCheck    `json:"header_crc"`
	FileCRC          CRCCheck    `json:"file_crc"`
	RecordsFile      string      `json:"records_file"`
	RecordsEncoding  string      `json:"records_encoding"`
	SamplesFile      string      `json:"samples_file"`
	RecordCount      int         `json:"record_count"`
	DefinitionCount  int         `json:"definition_count"`
	DataMessageCount int         `json:"data_message_count"`
	SampleCount      int         `json:"sample_count"`
	DecodedBytes     int64       `json:"decoded_bytes"`
	DecodeError      string      `json:"decode_error,omitempty"`
	FileIDProjection *FileIDInfo `json:"file_id_projection,omitempty"`
	Warnings         []string    `json:"warnings,omitempty"`
}

// HeaderInfo stores the decoded file header.
type HeaderInfo struct {
	Size            uint8  `json:"size"`
	ProtocolVersion uint8  `json:"protocol_version"`
	ProfileVersion  uint16 `json:"profile_version"`
	DataSize        uint32 `json:"data_size"`
}

// CRCCheck describes one checksum comparison.
type CRCCheck struct {
	Present     bool   `json:"present"`
	StoredHex   string `json:"stored_hex,omitempty"`
	ComputedHex string `json:"computed_hex,omitempty"`
	Valid       bool   `json:"valid"`
}

// FileIDInfo is a convenience projection of the file_id message.
type FileIDInfo struct {
	Type         string `json:"type"`
	Manufacturer string `json:"manufacturer"`
	Product      string `json:"product"`
	TimeCreated  string `json:"time_created,omitempty"`
	SerialNumber uint32 `json:"serial_number,omitempty"`
}

// RecordEnvelope is one entry of the record stream, in file order.
type RecordEnvelope struct {
	Index        int    `json:"index" cbor:"index"`
	Offset       int64  `json:"offset" cbor:"offset"`
	Kind         string `json:"kind" cbor:"kind"`
	LocalNumber  uint8  `json:"local_number" cbor:"local_number"`
	GlobalNumber uint16 `json:"global_number" cbor:"global_number"`
	Message      string `json:"message,omitempty" cbor:"message,omitempty"`

	Architecture    string                   `json:"architecture,omitempty" cbor:"architecture,omitempty"`
	Fields          []FieldEnvelope          `json:"fields,omitempty" cbor:"fields,omitempty"`
	DeveloperFields []DeveloperFieldEnvelope `json:"developer_fields,omitempty" cbor:"developer_fields,omitempty"`

	Compressed    bool           `json:"compressed,omitempty" cbor:"compressed,omitempty"`
	Timestamp     uint32         `json:"timestamp,omitempty" cbor:"timestamp,omitempty"`
	TimestampUTC  string         `json:"timestamp_utc,omitempty" cbor:"timestamp_utc,omitempty"`
	Values        map[string]any `json:"values,omitempty" cbor:"values,omitempty"`
	Developer     map[string]any `json:"developer_values,omitempty" cbor:"developer_values,omitempty"`
	InvalidFields []string       `json:"invalid_fields,omitempty" cbor:"invalid_fields,omitempty"`
}

// FieldEnvelope is one field of a definition record.
type FieldEnvelope struct {
	Number   uint8  `json:"number" cbor:"number"`
	Name     string `json:"name" cbor:"name"`
	Size     uint8  `json:"size" cbor:"size"`
	BaseType string `json:"base_type" cbor:"base_type"`
}

// DeveloperFieldEnvelope is one developer field of a definition record.
type DeveloperFieldEnvelope struct {
	Number             uint8 `json:"number" cbor:"number"`
	Size               uint8 `json:"size" cbor:"size"`
	DeveloperDataIndex uint8 `json:"developer_data_index" cbor:"developer_data_index"`
}

// SampleRow is one record message in physical units. Missing channels are
// NaN and have their valid flag cleared.
type SampleRow struct {
	TimestampUTC string
	ElapsedS     float64
	PowerW       float64
	HeartRateBPM float64
	CadenceRPM   float64
	SpeedMPS     float64
	DistanceM    float64
	AltitudeM    float64
	TemperatureC float64
	GradePct     float64
	ValidPower   bool
	ValidHR      bool
	ValidCadence bool
	ValidSpeed   bool
	FileOffset   int64
	RecordIndex  int64
}
