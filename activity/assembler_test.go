package activity

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tormoder/fit"

	"github.com/lucasjlepore/fit-activity/codec"
)

func newTestAssembler(t *testing.T) *Assembler {
	t.Helper()
	a, err := New(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return codec.TimeFromFIT(5000) }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func singleSampleWorkout() Workout {
	return Workout{
		Records: []Sample{{
			Timestamp: codec.TimeFromFIT(1000),
			Power:     150,
			Cadence:   80,
			Speed:     5,
			HeartRate: 140,
			Distance:  10,
		}},
		Laps: []Lap{{StartTime: codec.TimeFromFIT(900)}},
	}
}

func sessionOf(t *testing.T, records []codec.Record) *codec.Data {
	t.Helper()
	for _, r := range records {
		if d, ok := r.(*codec.Data); ok && d.Name == "session" {
			return d
		}
	}
	t.Fatal("no session message")
	return nil
}

func TestAssembleSingleSample(t *testing.T) {
	a := newTestAssembler(t)
	records, err := a.Assemble(singleSampleWorkout())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	var shape []string
	for _, r := range records {
		entry := r.Kind().String()
		switch x := r.(type) {
		case *codec.Definition:
			entry += ":" + x.Name
		case *codec.Data:
			entry += ":" + x.Name
		}
		shape = append(shape, entry)
	}
	want := []string{
		"header",
		"definition:file_id", "data:file_id",
		"definition:record", "data:record",
		"definition:lap", "data:lap",
		"definition:session", "data:session",
		"definition:activity", "data:activity",
		"crc",
	}
	if diff := cmp.Diff(want, shape); diff != "" {
		t.Fatalf("sequence mismatch (-want +got):\n%s", diff)
	}

	session := sessionOf(t, records)
	checks := map[string]any{
		"avg_power":      uint64(150),
		"max_power":      uint64(150),
		"num_laps":       uint64(1),
		"avg_speed":      uint64(5000),
		"avg_heart_rate": uint64(140),
		"total_distance": uint64(1000),
		"start_time":     uint64(1000),
		"timestamp":      uint64(1000),
	}
	for field, v := range checks {
		if got := session.Values[field]; got != v {
			t.Fatalf("session %s = %v, want %v", field, got, v)
		}
	}

	header := records[0].(*codec.FileHeader)
	total := 0
	for _, r := range records {
		total += r.Length()
	}
	if int(header.DataSize) != total-header.Length()-codec.CRCSize {
		t.Fatalf("header data size = %d, records total %d", header.DataSize, total)
	}
}

func TestEncodeDecodesWithOwnCodec(t *testing.T) {
	a := newTestAssembler(t)
	out, err := a.Encode(singleSampleWorkout())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s := codec.Decode(out, codec.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if s.Err != nil {
		t.Fatalf("decode: %v", s.Err)
	}
	if crc := s.CRC(); crc == nil || !crc.Valid() {
		t.Fatalf("crc = %+v", crc)
	}
	if h := s.Header(); int(h.DataSize) != len(out)-h.Length()-codec.CRCSize {
		t.Fatalf("data size %d for %d byte file", h.DataSize, len(out))
	}
	session := s.Messages("session")[0]
	if v, _ := session.Uint("avg_power"); v != 150 {
		t.Fatalf("decoded avg_power = %d", v)
	}
	lap := s.Messages("lap")[0]
	if v, _ := lap.Uint("total_elapsed_time"); v != 100000 {
		t.Fatalf("lap elapsed = %d, want 100000", v)
	}
	if v, _ := lap.Uint("timestamp"); v != 1000 {
		t.Fatalf("lap end = %d, want 1000", v)
	}
}

func TestEncodeReadableBySDK(t *testing.T) {
	a := newTestAssembler(t)
	out, err := a.Encode(singleSampleWorkout())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	file, err := fit.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("fit.Decode: %v", err)
	}
	if file.Type() != fit.FileTypeActivity {
		t.Fatalf("file type = %v", file.Type())
	}
	act, err := file.Activity()
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(act.Records) != 1 || act.Records[0].Power != 150 || act.Records[0].HeartRate != 140 {
		t.Fatalf("records = %+v", act.Records)
	}
	if len(act.Laps) != 1 {
		t.Fatalf("laps = %d", len(act.Laps))
	}
	if len(act.Sessions) != 1 {
		t.Fatalf("sessions = %d", len(act.Sessions))
	}
	sess := act.Sessions[0]
	if sess.AvgPower != 150 || sess.MaxPower != 150 || sess.NumLaps != 1 {
		t.Fatalf("session = avg %d max %d laps %d", sess.AvgPower, sess.MaxPower, sess.NumLaps)
	}
	if sess.Sport != fit.SportCycling || sess.SubSport != fit.SubSportVirtualActivity {
		t.Fatalf("session sport = %v/%v", sess.Sport, sess.SubSport)
	}
	if act.Activity == nil || act.Activity.NumSessions != 1 {
		t.Fatalf("activity = %+v", act.Activity)
	}
}

func TestSessionAggregation(t *testing.T) {
	a := newTestAssembler(t)
	w := Workout{
		Records: []Sample{
			{Timestamp: codec.TimeFromFIT(1000), Power: 100, Cadence: 90, Speed: 4, HeartRate: 120, Distance: 4},
			{Timestamp: codec.TimeFromFIT(1001), Power: 201, Cadence: math.NaN(), Speed: 6, HeartRate: 130, Distance: 10},
		},
		Laps: []Lap{},
	}
	records, err := a.Assemble(w)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	s := sessionOf(t, records)
	checks := map[string]any{
		"avg_power":      uint64(150), // 50 + 100.5, truncated
		"max_power":      uint64(201),
		"avg_cadence":    uint64(45),
		"max_cadence":    uint64(90),
		"avg_speed":      uint64(5000),
		"max_speed":      uint64(6000),
		"total_distance": uint64(1000),
		"num_laps":       uint64(0),
	}
	for field, v := range checks {
		if got := s.Values[field]; got != v {
			t.Fatalf("session %s = %v, want %v", field, got, v)
		}
	}
	for _, r := range records {
		if d, ok := r.(*codec.Data); ok && d.Name == "record" && d.Values["timestamp"] == uint64(1001) {
			if d.Values["cadence"] != nil {
				t.Fatalf("missing cadence encoded as %v", d.Values["cadence"])
			}
		}
	}
}

func TestRawValuesTruncate(t *testing.T) {
	a := newTestAssembler(t)
	cases := []struct {
		message, field string
		physical       float64
		want           any
	}{
		{"session", "avg_power", 150.9, uint64(150)},
		{"record", "heart_rate", 139.99, uint64(139)},
		{"record", "temperature", -3.7, int64(-3)},
		{"record", "speed", 4.2999, uint64(4299)},
	}
	for _, tc := range cases {
		if got := a.raw(tc.message, tc.field, tc.physical); got != tc.want {
			t.Fatalf("%s.%s(%v) = %#v, want %#v", tc.message, tc.field, tc.physical, got, tc.want)
		}
	}
}

func TestSessionTimesFollowSamples(t *testing.T) {
	a := newTestAssembler(t)
	w := Workout{
		Records: []Sample{
			{Timestamp: codec.TimeFromFIT(1000), Power: 100},
			{Timestamp: codec.TimeFromFIT(1010), Power: 100},
		},
		Laps: []Lap{{StartTime: codec.TimeFromFIT(900)}},
	}
	records, err := a.Assemble(w)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	s := sessionOf(t, records)
	got := map[string]any{}
	for _, f := range []string{"start_time", "timestamp", "total_elapsed_time", "total_timer_time"} {
		got[f] = s.Values[f]
	}
	want := map[string]any{
		"start_time":         uint64(1000),
		"timestamp":          uint64(1010),
		"total_elapsed_time": uint64(10000),
		"total_timer_time":   uint64(10000),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("session times mismatch (-want +got):\n%s", diff)
	}

	var created any
	for _, r := range records {
		if d, ok := r.(*codec.Data); ok && d.Name == "file_id" {
			created = d.Values["time_created"]
		}
	}
	if created != uint64(1010) {
		t.Fatalf("file_id time_created = %v, want 1010", created)
	}
}

func TestSessionBytesDeterministic(t *testing.T) {
	w := Workout{Laps: []Lap{{StartTime: codec.TimeFromFIT(0)}}}
	for i := 0; i < 50; i++ {
		w.Records = append(w.Records, Sample{
			Timestamp: codec.TimeFromFIT(uint32(i + 1)),
			Power:     100 + float64(i%7)*13.37,
			Cadence:   85 + float64(i%3),
			Speed:     7.1 + float64(i%5)*0.11,
			HeartRate: 140 + float64(i%11),
			Distance:  float64(i) * 7.3,
		})
	}
	first, err := newTestAssembler(t).Encode(w)
	if err != nil {
		t.Fatalf("first encode: %v", err)
	}
	second, err := newTestAssembler(t).Encode(w)
	if err != nil {
		t.Fatalf("second encode: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("two encodes of the same workout differ")
	}
}

func TestLapBoundaries(t *testing.T) {
	a := newTestAssembler(t)
	w := Workout{
		Records: []Sample{
			{Timestamp: codec.TimeFromFIT(960), Power: 200},
			{Timestamp: codec.TimeFromFIT(1000), Power: 210},
		},
		Laps: []Lap{
			{StartTime: codec.TimeFromFIT(900)},
			{StartTime: codec.TimeFromFIT(950), TotalTimerTime: 40 * time.Second},
		},
	}
	records, err := a.Assemble(w)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	var laps []codec.Values
	for _, r := range records {
		if d, ok := r.(*codec.Data); ok && d.Name == "lap" {
			laps = append(laps, d.Values)
		}
	}
	if len(laps) != 2 {
		t.Fatalf("got %d laps", len(laps))
	}
	want := []struct {
		index, end, elapsed, timer uint64
	}{
		{0, 950, 50000, 50000},
		{1, 1000, 50000, 40000},
	}
	for i, w := range want {
		got := laps[i]
		if got["message_index"] != w.index || got["timestamp"] != w.end ||
			got["total_elapsed_time"] != w.elapsed || got["total_timer_time"] != w.timer {
			t.Fatalf("lap %d = %v", i, got)
		}
	}
}

func TestMissingFields(t *testing.T) {
	a := newTestAssembler(t)
	cases := []struct {
		name    string
		workout Workout
		message string
		field   string
	}{
		{
			name:    "lap without start",
			workout: Workout{Records: singleSampleWorkout().Records, Laps: []Lap{{}}},
			message: "lap", field: "start_time",
		},
		{
			name:    "no records",
			workout: Workout{Laps: []Lap{}},
			message: "session", field: "records",
		},
		{
			name:    "no laps",
			workout: Workout{Records: singleSampleWorkout().Records},
			message: "session", field: "laps",
		},
		{
			name:    "sample without timestamp",
			workout: Workout{Records: []Sample{{Power: 1}}, Laps: []Lap{}},
			message: "record", field: "timestamp",
		},
	}
	for _, tc := range cases {
		out, err := a.Encode(tc.workout)
		if !errors.Is(err, ErrMissingField) {
			t.Fatalf("%s: error = %v, want ErrMissingField", tc.name, err)
		}
		var mf *MissingFieldError
		if !errors.As(err, &mf) || mf.Message != tc.message || mf.Field != tc.field {
			t.Fatalf("%s: error = %#v", tc.name, err)
		}
		if out != nil {
			t.Fatalf("%s: wrote %d bytes on error", tc.name, len(out))
		}
	}
}

func TestBuildersValidateDirectly(t *testing.T) {
	a := newTestAssembler(t)
	if _, err := a.Lap(0, Lap{StartTime: codec.TimeFromFIT(1)}); !errors.Is(err, ErrMissingField) {
		t.Fatalf("lap without timestamp: %v", err)
	}
	if _, err := a.Summary(time.Time{}); !errors.Is(err, ErrMissingField) {
		t.Fatalf("summary without timestamp: %v", err)
	}
	id := a.FileID(codec.TimeFromFIT(42))
	if id["type"] != uint64(fit.FileTypeActivity) || id["manufacturer"] != uint64(fit.ManufacturerDevelopment) {
		t.Fatalf("file_id = %v", id)
	}
}

func TestExtraRecordFields(t *testing.T) {
	a := newTestAssembler(t)
	w := singleSampleWorkout()
	w.Records[0].Extra = map[string]float64{"altitude": 100, "temperature": -3}
	out, err := a.Encode(w)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s := codec.Decode(out, codec.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if s.Err != nil {
		t.Fatalf("decode: %v", s.Err)
	}
	rec := s.Messages("record")[0]
	if rec.Values["altitude"] != uint64(3000) || rec.Values["temperature"] != int64(-3) {
		t.Fatalf("extra values = %v / %v", rec.Values["altitude"], rec.Values["temperature"])
	}

	w.Records[0].Extra = map[string]float64{"watts_per_kg": 3}
	if _, err := a.Encode(w); err == nil {
		t.Fatal("expected error for unknown extra field")
	}
}

func TestReadWorkout(t *testing.T) {
	doc := `{
  "records": [
    {"timestamp": "2026-02-26T23:00:00Z", "power": 150, "heart_rate": 140}
  ],
  "laps": [
    {"start_time": "2026-02-26T22:58:20Z", "total_timer_time": 90.5}
  ]
}`
	w, err := ReadWorkout(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ReadWorkout: %v", err)
	}
	s := w.Records[0]
	if s.Power != 150 || s.HeartRate != 140 || !math.IsNaN(s.Cadence) {
		t.Fatalf("sample = %+v", s)
	}
	if w.Laps[0].TotalTimerTime != 90500*time.Millisecond || !w.Laps[0].Timestamp.IsZero() {
		t.Fatalf("lap = %+v", w.Laps[0])
	}

	if _, err := ReadWorkout(strings.NewReader(`{"samples": []}`)); err == nil {
		t.Fatal("expected error for unknown key")
	}
}
