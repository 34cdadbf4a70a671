package export

import (
	"bytes"
	"encoding/binary"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"
	"github.com/tormoder/fit"

	"github.com/lucasjlepore/fit-activity/codec"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildCSVBundle(t *testing.T) {
	data := buildTestFIT(t)
	s := codec.Decode(data, codec.WithLogger(quiet()))
	if s.Err != nil {
		t.Fatalf("decode: %v", s.Err)
	}

	b, err := Build(s, data, Options{Samples: SamplesCSV, SourceFileName: "ride.fit", Logger: quiet()})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if diff := cmp.Diff([]string{ManifestName, "records.jsonl", "samples.csv"}, b.Names()); diff != "" {
		t.Fatalf("files mismatch (-want +got):\n%s", diff)
	}

	var m Manifest
	if err := json.Unmarshal(b.Files[ManifestName], &m); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if m.FormatVersion != FormatVersion {
		t.Fatalf("unexpected format version: %q", m.FormatVersion)
	}
	if len(m.SourceBLAKE3) != 64 {
		t.Fatalf("unexpected digest %q", m.SourceBLAKE3)
	}
	if !m.FileCRC.Present || !m.FileCRC.Valid {
		t.Fatalf("expected valid file CRC, got %+v", m.FileCRC)
	}
	if !m.HeaderCRC.Valid {
		t.Fatalf("expected valid header CRC, got %+v", m.HeaderCRC)
	}
	if m.DecodedBytes != int64(len(data)) {
		t.Fatalf("decoded %d of %d bytes", m.DecodedBytes, len(data))
	}
	if m.FileIDProjection == nil || m.FileIDProjection.Type != fmt.Sprint(fit.FileTypeActivity) {
		t.Fatalf("unexpected file_id projection: %+v", m.FileIDProjection)
	}
	if m.SampleCount != 1 || m.DataMessageCount == 0 || m.DefinitionCount == 0 {
		t.Fatalf("unexpected counts: %+v", m)
	}
	if len(m.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", m.Warnings)
	}

	rows, err := csv.NewReader(bytes.NewReader(b.Files["samples.csv"])).ReadAll()
	if err != nil {
		t.Fatalf("read samples csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus one row, got %d rows", len(rows))
	}
	if diff := cmp.Diff(sampleColumns, rows[0]); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	got := map[string]string{}
	for i, col := range rows[0] {
		got[col] = rows[1][i]
	}
	want := map[string]string{
		"ts_utc_iso":    "2026-02-26T23:00:30Z",
		"elapsed_s":     "0",
		"power_w":       "245",
		"hr_bpm":        "135",
		"cadence_rpm":   "92",
		"valid_power":   "true",
		"valid_hr":      "true",
		"valid_cadence": "true",
		"valid_speed":   "false",
		"speed_mps":     "",
	}
	for col, w := range want {
		if got[col] != w {
			t.Fatalf("%s = %q, want %q", col, got[col], w)
		}
	}
}

func TestRecordStreamJSONL(t *testing.T) {
	data := buildTestFIT(t)
	s := codec.Decode(data, codec.WithLogger(quiet()))

	b, err := Build(s, data, Options{Samples: SamplesCSV, Logger: quiet()})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b.Files["records.jsonl"])), "\n")
	if len(lines) != len(s.Records) {
		t.Fatalf("got %d lines for %d records", len(lines), len(s.Records))
	}

	var first, last RecordEnvelope
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal first line: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("unmarshal last line: %v", err)
	}
	if first.Kind != "header" || first.Offset != 0 {
		t.Fatalf("unexpected first envelope: %+v", first)
	}
	if last.Kind != "crc" || last.Offset != int64(len(data)-codec.CRCSize) {
		t.Fatalf("unexpected last envelope: %+v", last)
	}

	var record *RecordEnvelope
	for _, line := range lines {
		var env RecordEnvelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		if env.Kind == "data" && env.Message == "record" {
			record = &env
			break
		}
	}
	if record == nil {
		t.Fatal("no record envelope")
	}
	if record.TimestampUTC != "2026-02-26T23:00:30Z" {
		t.Fatalf("unexpected timestamp %q", record.TimestampUTC)
	}
	if p, ok := record.Values["power"].(float64); !ok || p != 245 {
		t.Fatalf("power = %#v", record.Values["power"])
	}
}

func TestRecordStreamCBORZstd(t *testing.T) {
	data := buildTestFIT(t)
	s := codec.Decode(data, codec.WithLogger(quiet()))

	b, err := Build(s, data, Options{Records: RecordsCBOR, Compress: true, Samples: SamplesCSV, Logger: quiet()})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	compressed, ok := b.Files["records.cbor.zst"]
	if !ok {
		t.Fatalf("missing records.cbor.zst in %v", b.Names())
	}

	zr, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer zr.Close()

	dec := cbor.NewDecoder(zr)
	var envs []RecordEnvelope
	for {
		var env RecordEnvelope
		err := dec.Decode(&env)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("cbor decode: %v", err)
		}
		envs = append(envs, env)
	}
	if len(envs) != len(s.Records) {
		t.Fatalf("got %d envelopes for %d records", len(envs), len(s.Records))
	}
	if envs[0].Kind != "header" || envs[len(envs)-1].Kind != "crc" {
		t.Fatalf("unexpected stream ends: %s .. %s", envs[0].Kind, envs[len(envs)-1].Kind)
	}
}

func TestCBORIsDeterministic(t *testing.T) {
	data := buildTestFIT(t)
	envs := Envelopes(codec.Decode(data, codec.WithLogger(quiet())))

	a, err := MarshalCBOR(envs)
	if err != nil {
		t.Fatalf("MarshalCBOR error: %v", err)
	}
	b, err := MarshalCBOR(envs)
	if err != nil {
		t.Fatalf("MarshalCBOR error: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("CBOR output differs between runs")
	}
}

func TestSamplesParquet(t *testing.T) {
	data := buildTestFIT(t)
	s := codec.Decode(data, codec.WithLogger(quiet()))

	b, err := Build(s, data, Options{Logger: quiet()})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	out := b.Files["samples.parquet"]
	if !bytes.HasPrefix(out, []byte("PAR1")) || !bytes.HasSuffix(out, []byte("PAR1")) {
		t.Fatalf("samples.parquet is not a parquet file (%d bytes)", len(out))
	}
}

func TestWriteBundle(t *testing.T) {
	data := buildTestFIT(t)
	s := codec.Decode(data, codec.WithLogger(quiet()))
	dir := filepath.Join(t.TempDir(), "export")

	res, err := Write(s, data, dir, Options{CopySource: true, Samples: SamplesCSV, Logger: quiet()})
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	for _, p := range []string{res.ManifestPath, res.RecordsPath, res.SamplesPath, res.SourceCopyPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("missing %s: %v", p, err)
		}
	}
	src, err := os.ReadFile(res.SourceCopyPath)
	if err != nil {
		t.Fatalf("read source copy: %v", err)
	}
	if !bytes.Equal(src, data) {
		t.Fatal("source copy differs from input")
	}
	if !res.FileCRCValid || res.RecordCount != len(s.Records) || res.SampleCount != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	if _, err := Write(s, data, dir, Options{Logger: quiet()}); err == nil {
		t.Fatal("expected error writing into a non-empty directory")
	}
	if _, err := Write(s, data, dir, Options{Overwrite: true, Logger: quiet()}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}

func TestTruncatedInputWarns(t *testing.T) {
	data := buildTestFIT(t)
	cut := data[:len(data)-codec.CRCSize-1]
	s := codec.Decode(cut, codec.WithLogger(quiet()))
	if s.Err == nil {
		t.Fatal("expected decode error for truncated input")
	}

	b, err := Build(s, cut, Options{Samples: SamplesCSV, Logger: quiet()})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	m := b.Manifest
	if m.DecodeError == "" || m.FileCRC.Present {
		t.Fatalf("unexpected manifest: %+v", m)
	}
	if m.DecodedBytes >= int64(len(cut)) {
		t.Fatalf("decoded %d of %d bytes", m.DecodedBytes, len(cut))
	}
	if len(m.Warnings) == 0 {
		t.Fatal("expected warnings")
	}
}

func TestUnsupportedFormats(t *testing.T) {
	data := buildTestFIT(t)
	s := codec.Decode(data, codec.WithLogger(quiet()))
	if _, err := Build(s, data, Options{Records: "xml", Logger: quiet()}); err == nil {
		t.Fatal("expected error for unknown record format")
	}
	if _, err := Build(s, data, Options{Samples: "xlsx", Logger: quiet()}); err == nil {
		t.Fatal("expected error for unknown sample format")
	}
}

func buildTestFIT(t *testing.T) []byte {
	t.Helper()

	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)
	if err != nil {
		t.Fatalf("new fit file: %v", err)
	}

	activity, err := file.Activity()
	if err != nil {
		t.Fatalf("activity accessor: %v", err)
	}

	start := time.Date(2026, 2, 26, 23, 0, 0, 0, time.UTC)
	event := fit.NewEventMsg()
	event.Timestamp = start
	event.Event = fit.EventTimer
	event.EventType = fit.EventTypeStart
	activity.Events = append(activity.Events, event)

	record := fit.NewRecordMsg()
	record.Timestamp = start.Add(30 * time.Second)
	record.HeartRate = 135
	record.Power = 245
	record.Cadence = 92
	activity.Records = append(activity.Records, record)

	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		t.Fatalf("encode fit: %v", err)
	}
	return buf.Bytes()
}
