// Package activity assembles a complete FIT activity file from recorded
// samples and lap boundaries.
package activity

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/lucasjlepore/fit-activity/codec"
	"github.com/lucasjlepore/fit-activity/profile"
)

// Messages every product must declare, in the order they are written.
var requiredMessages = []string{"file_id", "record", "lap", "session", "activity"}

// Assembler turns workouts into FIT message sequences. It is safe for
// concurrent use once built.
type Assembler struct {
	reg     *profile.Registry
	product *profile.Product
	logger  *slog.Logger
	now     func() time.Time

	defs map[string]*codec.Definition
}

// Option configures an Assembler.
type Option func(*Assembler)

func WithRegistry(reg *profile.Registry) Option {
	return func(a *Assembler) { a.reg = reg }
}

// WithProduct replaces the embedded local-activity message layout.
func WithProduct(p *profile.Product) Option {
	return func(a *Assembler) { a.product = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// WithClock sets the time source used when a workout has no samples to
// take its timestamps from.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// New builds an Assembler and resolves every product definition up front.
func New(opts ...Option) (*Assembler, error) {
	a := &Assembler{
		reg:     profile.Default(),
		product: profile.DefaultProduct(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.defs = make(map[string]*codec.Definition, len(requiredMessages))
	for _, name := range requiredMessages {
		pm, ok := a.product.Message(name)
		if !ok {
			return nil, fmt.Errorf("product %s does not declare %s", a.product.Name, name)
		}
		def, err := a.definition(pm, nil)
		if err != nil {
			return nil, err
		}
		a.defs[name] = def
	}
	return a, nil
}

func (a *Assembler) definition(pm profile.ProductMessage, extra []string) (*codec.Definition, error) {
	fields := pm.Fields
	if len(extra) > 0 {
		fields = append(slices.Clip(fields), extra...)
	}
	def, err := codec.NewDefinition(a.reg, pm.Name, fields, pm.LocalNumber)
	if err != nil {
		return nil, fmt.Errorf("product message %s: %w", pm.Name, err)
	}
	if def.Architecture, err = codec.ParseArchitecture(pm.Architecture); err != nil {
		return nil, fmt.Errorf("product message %s: %w", pm.Name, err)
	}
	return def, nil
}

// recordDefinition extends the product record layout with any extra fields
// the samples carry, in name order.
func (a *Assembler) recordDefinition(samples []Sample) (*codec.Definition, error) {
	base := a.defs["record"]
	seen := make(map[string]struct{})
	for _, s := range samples {
		for name := range s.Extra {
			if _, ok := base.Field(name); !ok {
				seen[name] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return base, nil
	}
	pm, _ := a.product.Message("record")
	return a.definition(pm, slices.Sorted(maps.Keys(seen)))
}

// Assemble validates w and returns its full record sequence: header,
// file_id, records, laps, session, activity and CRC. The header's data size
// is filled in from the assembled records.
func (a *Assembler) Assemble(w Workout) ([]codec.Record, error) {
	end := a.activityTime(w.Records)

	// Every builder runs before any record is assembled so caller mistakes
	// surface without partial output.
	fileID := a.FileID(end)
	samples := make([]codec.Values, len(w.Records))
	for i, s := range w.Records {
		v, err := a.Record(i, s)
		if err != nil {
			return nil, err
		}
		samples[i] = v
	}
	laps := make([]codec.Values, len(w.Laps))
	for i, l := range w.Laps {
		if l.Timestamp.IsZero() {
			l.Timestamp = lapEnd(w.Laps, i, end)
		}
		v, err := a.Lap(i, l)
		if err != nil {
			return nil, err
		}
		laps[i] = v
	}
	session, err := a.Session(w.Records, w.Laps, end)
	if err != nil {
		return nil, err
	}
	summary, err := a.Summary(end)
	if err != nil {
		return nil, err
	}
	recordDef, err := a.recordDefinition(w.Records)
	if err != nil {
		return nil, err
	}

	header := codec.NewFileHeader()
	records := make([]codec.Record, 0, len(samples)+len(laps)+12)
	records = append(records, header)
	records = appendMessage(records, a.defs["file_id"], fileID)
	records = appendMessage(records, recordDef, samples...)
	records = appendMessage(records, a.defs["lap"], laps...)
	records = appendMessage(records, a.defs["session"], session)
	records = appendMessage(records, a.defs["activity"], summary)
	records = append(records, &codec.CRC{})

	size := 0
	for _, r := range records {
		size += r.Length()
	}
	header.DataSize = uint32(size - header.Length() - codec.CRCSize)

	a.logger.Debug("activity assembled",
		"records", len(samples), "laps", len(laps), "bytes", size)
	return records, nil
}

// Encode assembles w and writes it as FIT bytes.
func (a *Assembler) Encode(w Workout) ([]byte, error) {
	records, err := a.Assemble(w)
	if err != nil {
		return nil, err
	}
	return codec.Encode(records, codec.WithRegistry(a.reg), codec.WithLogger(a.logger))
}

func appendMessage(records []codec.Record, def *codec.Definition, values ...codec.Values) []codec.Record {
	records = append(records, def)
	for _, v := range values {
		records = append(records, &codec.Data{
			LocalNumber:  def.LocalNumber,
			Name:         def.Name,
			GlobalNumber: def.GlobalNumber,
			Values:       v,
			Definition:   def,
		})
	}
	return records
}

// activityTime is the last sample's timestamp, or now for an empty workout.
func (a *Assembler) activityTime(samples []Sample) time.Time {
	if n := len(samples); n > 0 && !samples[n-1].Timestamp.IsZero() {
		return samples[n-1].Timestamp
	}
	return a.now()
}

// lapEnd is where lap i stops when it carries no timestamp: the next lap's
// start, or the end of the activity.
func lapEnd(laps []Lap, i int, activityEnd time.Time) time.Time {
	if i+1 < len(laps) && !laps[i+1].StartTime.IsZero() {
		return laps[i+1].StartTime
	}
	return activityEnd
}
