//go:build js

package export

import (
	"errors"
	"testing"

	"github.com/lucasjlepore/fit-activity/codec"
)

func TestParquetUnavailableOnJS(t *testing.T) {
	data := buildTestFIT(t)
	s := codec.Decode(data, codec.WithLogger(quiet()))

	if _, err := Build(s, data, Options{Samples: SamplesParquet, Logger: quiet()}); !errors.Is(err, ErrParquetUnsupported) {
		t.Fatalf("parquet build error = %v, want ErrParquetUnsupported", err)
	}
	b, err := Build(s, data, Options{Samples: SamplesCSV, Logger: quiet()})
	if err != nil {
		t.Fatalf("csv build: %v", err)
	}
	if _, ok := b.Files["samples.csv"]; !ok {
		t.Fatalf("missing samples.csv in %v", b.Names())
	}
}
