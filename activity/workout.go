package activity

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"
)

// Sample is one recorded instant in physical units: watts, rpm, m/s, bpm
// and metres. NaN marks a channel the recorder had no reading for.
type Sample struct {
	Timestamp time.Time
	Power     float64
	Cadence   float64
	Speed     float64
	HeartRate float64
	Distance  float64

	// Extra holds further record fields by profile name, in physical units.
	Extra map[string]float64
}

// Lap marks a lap boundary. Timestamp is the lap end; a zero value means
// the lap runs until the next lap starts or the activity ends. Zero
// durations are derived from the lap span.
type Lap struct {
	StartTime        time.Time
	Timestamp        time.Time
	TotalElapsedTime time.Duration
	TotalTimerTime   time.Duration
}

// Workout is everything needed to assemble one activity file.
type Workout struct {
	Records []Sample `json:"records"`
	Laps    []Lap    `json:"laps"`
}

type sampleJSON struct {
	Timestamp time.Time          `json:"timestamp"`
	Power     *float64           `json:"power,omitempty"`
	Cadence   *float64           `json:"cadence,omitempty"`
	Speed     *float64           `json:"speed,omitempty"`
	HeartRate *float64           `json:"heart_rate,omitempty"`
	Distance  *float64           `json:"distance,omitempty"`
	Extra     map[string]float64 `json:"extra,omitempty"`
}

func optional(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func present(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// UnmarshalJSON reads absent channels as NaN rather than zero.
func (s *Sample) UnmarshalJSON(b []byte) error {
	var raw sampleJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = Sample{
		Timestamp: raw.Timestamp,
		Power:     optional(raw.Power),
		Cadence:   optional(raw.Cadence),
		Speed:     optional(raw.Speed),
		HeartRate: optional(raw.HeartRate),
		Distance:  optional(raw.Distance),
		Extra:     raw.Extra,
	}
	return nil
}

func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(sampleJSON{
		Timestamp: s.Timestamp,
		Power:     present(s.Power),
		Cadence:   present(s.Cadence),
		Speed:     present(s.Speed),
		HeartRate: present(s.HeartRate),
		Distance:  present(s.Distance),
		Extra:     s.Extra,
	})
}

type lapJSON struct {
	StartTime        time.Time  `json:"start_time"`
	Timestamp        *time.Time `json:"timestamp,omitempty"`
	TotalElapsedTime float64    `json:"total_elapsed_time,omitempty"`
	TotalTimerTime   float64    `json:"total_timer_time,omitempty"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// UnmarshalJSON reads durations as seconds.
func (l *Lap) UnmarshalJSON(b []byte) error {
	var raw lapJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*l = Lap{
		StartTime:        raw.StartTime,
		TotalElapsedTime: seconds(raw.TotalElapsedTime),
		TotalTimerTime:   seconds(raw.TotalTimerTime),
	}
	if raw.Timestamp != nil {
		l.Timestamp = *raw.Timestamp
	}
	return nil
}

func (l Lap) MarshalJSON() ([]byte, error) {
	raw := lapJSON{
		StartTime:        l.StartTime,
		TotalElapsedTime: l.TotalElapsedTime.Seconds(),
		TotalTimerTime:   l.TotalTimerTime.Seconds(),
	}
	if !l.Timestamp.IsZero() {
		raw.Timestamp = &l.Timestamp
	}
	return json.Marshal(raw)
}

// ReadWorkout decodes a workout JSON document.
func ReadWorkout(r io.Reader) (Workout, error) {
	var w Workout
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return Workout{}, fmt.Errorf("decode workout: %w", err)
	}
	return w, nil
}
