//go:build js && wasm

package main

import (
	"archive/zip"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall/js"
	"time"

	"github.com/lucasjlepore/fit-activity/activity"
	"github.com/lucasjlepore/fit-activity/codec"
	"github.com/lucasjlepore/fit-activity/export"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

func main() {
	js.Global().Set("decodeFit", js.FuncOf(decodeFit))
	js.Global().Set("encodeActivity", js.FuncOf(encodeActivity))
	select {}
}

func failure(format string, args ...any) map[string]any {
	return map[string]any{
		"ok":    false,
		"error": fmt.Sprintf(format, args...),
	}
}

// decodeFit(fileBytes: Uint8Array, options: object) returns a zipped export
// bundle.
func decodeFit(_ js.Value, args []js.Value) any {
	if len(args) < 1 {
		return failure("expected arguments: fileBytes(Uint8Array), options(object)")
	}
	fileArg := args[0]
	optsArg := js.Undefined()
	if len(args) > 1 {
		optsArg = args[1]
	}
	if fileArg.IsUndefined() || fileArg.IsNull() || fileArg.Get("length").Int() == 0 {
		return failure("fit file bytes are required")
	}

	fileBytes := make([]byte, fileArg.Get("length").Int())
	if n := js.CopyBytesToGo(fileBytes, fileArg); n == 0 {
		return failure("failed to read FIT bytes from JS input")
	}

	stream := codec.Decode(fileBytes, codec.WithLogger(logger))
	bundle, err := export.Build(stream, fileBytes, export.Options{
		CopySource:     true,
		Records:        export.RecordFormat(getString(optsArg, "records", "jsonl")),
		Samples:        export.SampleFormat(getString(optsArg, "samples", string(export.SamplesCSV))),
		Compress:       getBool(optsArg, "zstd"),
		SourceFileName: getString(optsArg, "source_file_name", "input.fit"),
		Logger:         logger,
	})
	if err != nil {
		return failure("%v", err)
	}

	zipBytes, err := zipArtifacts(bundle)
	if err != nil {
		return failure("create zip: %v", err)
	}
	payload := js.Global().Get("Uint8Array").New(len(zipBytes))
	js.CopyBytesToJS(payload, zipBytes)

	return map[string]any{
		"ok":       true,
		"zip":      payload,
		"warnings": stringsToAny(bundle.Manifest.Warnings),
		"files":    stringsToAny(bundle.Names()),
	}
}

// encodeActivity(workoutJSON: string) returns the activity file bytes.
func encodeActivity(_ js.Value, args []js.Value) any {
	if len(args) < 1 || args[0].Type() != js.TypeString {
		return failure("expected arguments: workoutJSON(string)")
	}
	workout, err := activity.ReadWorkout(strings.NewReader(args[0].String()))
	if err != nil {
		return failure("%v", err)
	}
	assembler, err := activity.New(activity.WithLogger(logger))
	if err != nil {
		return failure("%v", err)
	}
	data, err := assembler.Encode(workout)
	if err != nil {
		return failure("%v", err)
	}
	payload := js.Global().Get("Uint8Array").New(len(data))
	js.CopyBytesToJS(payload, data)
	return map[string]any{
		"ok":  true,
		"fit": payload,
	}
}

func zipArtifacts(b *export.Bundle) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fixedTime := time.Unix(0, 0).UTC()

	for _, name := range b.Names() {
		h := &zip.FileHeader{
			Name:   name,
			Method: zip.Deflate,
		}
		h.SetModTime(fixedTime)
		w, err := zw.CreateHeader(h)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(b.Files[name]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func getString(v js.Value, key, fallback string) string {
	if v.IsUndefined() || v.IsNull() {
		return fallback
	}
	out := v.Get(key)
	if out.IsUndefined() || out.IsNull() || out.Type() != js.TypeString {
		return fallback
	}
	if s := out.String(); s != "" {
		return s
	}
	return fallback
}

func getBool(v js.Value, key string) bool {
	if v.IsUndefined() || v.IsNull() {
		return false
	}
	out := v.Get(key)
	return out.Type() == js.TypeBoolean && out.Bool()
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
