package activity

import (
	"math"
	"time"

	"github.com/lucasjlepore/fit-activity/codec"
)

// raw converts a physical value to the stored integer for message.field,
// truncating toward zero.
// NaN and unknown fields come back nil, which encodes as "no data".
func (a *Assembler) raw(message, field string, physical float64) any {
	if math.IsNaN(physical) {
		return nil
	}
	fs, err := a.reg.Field(message, field)
	if err != nil {
		a.logger.Debug("no profile entry for value", "message", message, "field", field)
		return nil
	}
	v := math.Trunc(fs.ToRaw(physical))
	if v < 0 {
		return int64(v)
	}
	return uint64(v)
}

func (a *Assembler) enum(typ, name string) any {
	v, ok := a.reg.EnumValue(typ, name)
	if !ok {
		a.logger.Warn("unknown enum value", "type", typ, "value", name)
		return nil
	}
	return v
}

func timestamp(t time.Time) uint64 {
	return uint64(codec.FITTime(t))
}

// FileID builds the file_id message of an activity created at created.
func (a *Assembler) FileID(created time.Time) codec.Values {
	return codec.Values{
		"time_created": timestamp(created),
		"manufacturer": a.enum("manufacturer", "development"),
		"product":      uint64(0),
		"number":       uint64(0),
		"type":         a.enum("file", "activity"),
	}
}

// Record builds the record message for sample i.
func (a *Assembler) Record(i int, s Sample) (codec.Values, error) {
	if s.Timestamp.IsZero() {
		return nil, missing("record", "timestamp", i)
	}
	v := codec.Values{
		"timestamp":  timestamp(s.Timestamp),
		"power":      a.raw("record", "power", s.Power),
		"cadence":    a.raw("record", "cadence", s.Cadence),
		"speed":      a.raw("record", "speed", s.Speed),
		"heart_rate": a.raw("record", "heart_rate", s.HeartRate),
		"distance":   a.raw("record", "distance", s.Distance),
	}
	for name, x := range s.Extra {
		v[name] = a.raw("record", name, x)
	}
	return v, nil
}

// Lap builds the lap message at position index. Both the start time and the
// end timestamp are required.
func (a *Assembler) Lap(index int, l Lap) (codec.Values, error) {
	if l.StartTime.IsZero() {
		return nil, missing("lap", "start_time", index)
	}
	if l.Timestamp.IsZero() {
		return nil, missing("lap", "timestamp", index)
	}
	elapsed := l.TotalElapsedTime
	if elapsed == 0 {
		elapsed = l.Timestamp.Sub(l.StartTime)
	}
	timer := l.TotalTimerTime
	if timer == 0 {
		timer = elapsed
	}
	return codec.Values{
		"timestamp":          timestamp(l.Timestamp),
		"start_time":         timestamp(l.StartTime),
		"total_elapsed_time": a.raw("lap", "total_elapsed_time", elapsed.Seconds()),
		"total_timer_time":   a.raw("lap", "total_timer_time", timer.Seconds()),
		"message_index":      uint64(index),
		"event":              a.enum("event", "lap"),
		"event_type":         a.enum("event_type", "stop"),
	}, nil
}

// aggregate is a running mean and maximum over one sample channel.
type aggregate struct {
	n   float64
	avg float64
	max float64
}

// add folds v in as avg += v/n, in sample order. Missing readings are
// skipped but still count toward n.
func (g *aggregate) add(v float64) {
	if math.IsNaN(v) {
		return
	}
	g.avg += v / g.n
	if v > g.max {
		g.max = v
	}
}

// Session builds the single session message summarising samples and laps.
// It starts at the first sample and ends at end.
func (a *Assembler) Session(samples []Sample, laps []Lap, end time.Time) (codec.Values, error) {
	if len(samples) == 0 {
		return nil, missing("session", "records", -1)
	}
	if laps == nil {
		return nil, missing("session", "laps", -1)
	}

	n := float64(len(samples))
	power := aggregate{n: n}
	cadence := aggregate{n: n}
	speed := aggregate{n: n}
	heartRate := aggregate{n: n}
	for _, s := range samples {
		power.add(s.Power)
		cadence.add(s.Cadence)
		speed.add(s.Speed)
		heartRate.add(s.HeartRate)
	}

	start := samples[0].Timestamp
	elapsed := end.Sub(start).Seconds()

	return codec.Values{
		"timestamp":          timestamp(end),
		"start_time":         timestamp(start),
		"total_timer_time":   a.raw("session", "total_timer_time", elapsed),
		"total_elapsed_time": a.raw("session", "total_elapsed_time", elapsed),
		"message_index":      uint64(0),
		"sport":              a.enum("sport", "cycling"),
		"sub_sport":          a.enum("sub_sport", "virtual_activity"),
		"avg_power":          a.raw("session", "avg_power", power.avg),
		"avg_cadence":        a.raw("session", "avg_cadence", cadence.avg),
		"avg_speed":          a.raw("session", "avg_speed", speed.avg),
		"avg_heart_rate":     a.raw("session", "avg_heart_rate", heartRate.avg),
		"max_power":          a.raw("session", "max_power", power.max),
		"max_cadence":        a.raw("session", "max_cadence", cadence.max),
		"max_speed":          a.raw("session", "max_speed", speed.max),
		"max_heart_rate":     a.raw("session", "max_heart_rate", heartRate.max),
		"total_distance":     a.raw("session", "total_distance", samples[len(samples)-1].Distance),
		"first_lap_index":    uint64(0),
		"num_laps":           uint64(len(laps)),
	}, nil
}

// Summary builds the activity message closing a file at ts.
func (a *Assembler) Summary(ts time.Time) (codec.Values, error) {
	if ts.IsZero() {
		return nil, missing("activity", "timestamp", -1)
	}
	return codec.Values{
		"timestamp":    timestamp(ts),
		"num_sessions": uint64(1),
		"type":         a.enum("activity", "manual"),
		"event":        a.enum("event", "activity"),
		"event_type":   a.enum("event_type", "stop"),
	}, nil
}
