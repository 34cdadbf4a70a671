package export

import (
	"bytes"
	"encoding/csv"
	"math"
	"strconv"
	"time"

	"github.com/lucasjlepore/fit-activity/codec"
	"github.com/lucasjlepore/fit-activity/profile"
)

// Samples returns one row per record message, in file order. Records
// without a timestamp are skipped.
func Samples(s *codec.Stream, reg *profile.Registry) []SampleRow {
	if reg == nil {
		reg = profile.Default()
	}
	var (
		out   []SampleRow
		first uint32
	)
	for i, r := range s.Records {
		d, ok := r.(*codec.Data)
		if !ok || d.Name != "record" || d.Timestamp == 0 {
			continue
		}
		if first == 0 {
			first = d.Timestamp
		}
		row := SampleRow{
			TimestampUTC: codec.TimeFromFIT(d.Timestamp).Format(time.RFC3339),
			ElapsedS:     float64(d.Timestamp - first),
			FileOffset:   int64(s.Offsets[i]),
			RecordIndex:  int64(i),
		}
		row.PowerW, row.ValidPower = physical(reg, d, "power")
		row.HeartRateBPM, row.ValidHR = physical(reg, d, "heart_rate")
		row.CadenceRPM, row.ValidCadence = physical(reg, d, "cadence")
		row.SpeedMPS, row.ValidSpeed = physical(reg, d, "speed", "enhanced_speed")
		row.DistanceM, _ = physical(reg, d, "distance")
		row.AltitudeM, _ = physical(reg, d, "altitude", "enhanced_altitude")
		row.TemperatureC, _ = physical(reg, d, "temperature")
		row.GradePct, _ = physical(reg, d, "grade")
		out = append(out, row)
	}
	return out
}

// physical scales the first valid field among names into physical units.
func physical(reg *profile.Registry, d *codec.Data, names ...string) (float64, bool) {
	for _, name := range names {
		if !d.Valid(name) {
			continue
		}
		v, ok := number(d.Values[name])
		if !ok {
			continue
		}
		fs, err := reg.Field("record", name)
		if err != nil {
			return v, true
		}
		return fs.ToPhysical(v), true
	}
	return math.NaN(), false
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case uint64:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, !math.IsNaN(x)
	default:
		return 0, false
	}
}

var sampleColumns = []string{
	"ts_utc_iso", "elapsed_s", "power_w", "hr_bpm", "cadence_rpm", "speed_mps",
	"distance_m", "altitude_m", "temperature_c", "grade_pct",
	"valid_power", "valid_hr", "valid_cadence", "valid_speed",
	"file_offset", "record_index",
}

// MarshalSamplesCSV renders rows with a header line. Missing values are
// empty cells.
func MarshalSamplesCSV(rows []SampleRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(sampleColumns); err != nil {
		return nil, err
	}
	for _, s := range rows {
		record := []string{
			s.TimestampUTC,
			formatFloat(s.ElapsedS),
			formatFloat(s.PowerW),
			formatFloat(s.HeartRateBPM),
			formatFloat(s.CadenceRPM),
			formatFloat(s.SpeedMPS),
			formatFloat(s.DistanceM),
			formatFloat(s.AltitudeM),
			formatFloat(s.TemperatureC),
			formatFloat(s.GradePct),
			strconv.FormatBool(s.ValidPower),
			strconv.FormatBool(s.ValidHR),
			strconv.FormatBool(s.ValidCadence),
			strconv.FormatBool(s.ValidSpeed),
			strconv.FormatInt(s.FileOffset, 10),
			strconv.FormatInt(s.RecordIndex, 10),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
