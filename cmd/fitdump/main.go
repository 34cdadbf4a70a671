package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	"github.com/lucasjlepore/fit-activity/codec"
	"github.com/lucasjlepore/fit-activity/export"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fitdump failed: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		outDir     string
		samples    string
		records    string
		compress   bool
		overwrite  bool
		copySource bool
		maxBytes   int
		verbose    bool
	)
	flagSet := pflag.NewFlagSet("fitdump", pflag.ContinueOnError)
	flagSet.StringVarP(&outDir, "out", "o", "", "write an export bundle to this directory instead of printing a summary")
	flagSet.StringVar(&samples, "samples", "parquet", "sample table format: parquet|csv")
	flagSet.StringVar(&records, "records", "jsonl", "record stream format: jsonl|cbor")
	flagSet.BoolVar(&compress, "zstd", false, "compress the record stream with zstd")
	flagSet.BoolVar(&overwrite, "overwrite", true, "allow writing into a non-empty output directory")
	flagSet.BoolVar(&copySource, "copy-source", true, "copy the input into the bundle as source.fit")
	flagSet.IntVar(&maxBytes, "max-bytes", 0, "refuse inputs larger than this many bytes (0 disables the limit)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log decoder diagnostics")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fitdump [flags] <path-to-fit-file>\n")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 1 {
		flagSet.Usage()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	inputPath := flagSet.Arg(0)
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	opts := []codec.Option{codec.WithLogger(logger)}
	if maxBytes > 0 {
		opts = append(opts, codec.WithMaxBytes(maxBytes))
	}
	stream := codec.Decode(data, opts...)

	if strings.TrimSpace(outDir) == "" {
		printSummary(inputPath, data, stream)
		return nil
	}

	result, err := export.Write(stream, data, outDir, export.Options{
		Overwrite:      overwrite,
		CopySource:     copySource,
		Records:        export.RecordFormat(records),
		Samples:        export.SampleFormat(samples),
		Compress:       compress,
		SourceFileName: filepath.Base(inputPath),
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Export complete\n")
	fmt.Printf("Output dir: %s\n", result.OutputDir)
	fmt.Printf("Manifest:   %s\n", result.ManifestPath)
	fmt.Printf("Records:    %s\n", result.RecordsPath)
	fmt.Printf("Samples:    %s\n", result.SamplesPath)
	if result.SourceCopyPath != "" {
		fmt.Printf("Source fit: %s\n", result.SourceCopyPath)
	}
	fmt.Printf("Counts:     %d records, %d samples\n", result.RecordCount, result.SampleCount)
	fmt.Printf("CRC valid:  header=%t file=%t\n", result.HeaderCRCValid, result.FileCRCValid)
	return nil
}

func printSummary(path string, data []byte, s *codec.Stream) {
	fmt.Printf("File:       %s (%d bytes)\n", path, len(data))
	if h := s.Header(); h != nil {
		fmt.Printf("Header:     %d bytes, protocol 0x%02x, profile %d, data size %d\n",
			h.Length(), h.ProtocolVersion, h.ProfileVersion, h.DataSize)
		if h.CRC != 0 {
			fmt.Printf("Header CRC: 0x%04x valid=%t\n", h.CRC, h.CRCValid)
		}
	}
	fmt.Printf("Records:    %d (%d definitions, %d data messages)\n",
		len(s.Records), s.Count(codec.KindDefinition), s.Count(codec.KindData))

	counts := map[string]int{}
	for _, r := range s.Records {
		if d, ok := r.(*codec.Data); ok {
			counts[d.Name]++
		}
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Printf("  %-22s %d\n", name, counts[name])
	}

	if c := s.CRC(); c != nil {
		fmt.Printf("File CRC:   stored 0x%04x computed 0x%04x valid=%t\n", c.Stored, c.Computed, c.Valid())
	} else {
		fmt.Printf("File CRC:   missing\n")
	}
	if s.Err != nil {
		fmt.Printf("Stopped:    %v\n", s.Err)
	}
}
