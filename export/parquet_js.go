//go:build js

package export

import "errors"

// ErrParquetUnsupported is returned by MarshalSamplesParquet in js builds.
var ErrParquetUnsupported = errors.New("parquet samples are not available in js builds; use csv")

// MarshalSamplesParquet always fails in js builds.
func MarshalSamplesParquet([]SampleRow) ([]byte, error) {
	return nil, ErrParquetUnsupported
}
