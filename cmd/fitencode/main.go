package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/lucasjlepore/fit-activity/activity"
	"github.com/lucasjlepore/fit-activity/profile"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fitencode failed: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		outPath     string
		productPath string
		verbose     bool
	)
	flagSet := pflag.NewFlagSet("fitencode", pflag.ContinueOnError)
	flagSet.StringVarP(&outPath, "out", "o", "", "output .fit path (default: input name with .fit extension)")
	flagSet.StringVar(&productPath, "product", "", "YAML product definition replacing the built-in local_activity layout")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log encoder diagnostics")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fitencode [flags] <workout.json|->\n")
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

	input := flagSet.Arg(0)
	var r io.Reader = os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	workout, err := activity.ReadWorkout(r)
	if err != nil {
		return err
	}

	opts := []activity.Option{activity.WithLogger(logger)}
	if productPath != "" {
		f, err := os.Open(productPath)
		if err != nil {
			return err
		}
		product, err := profile.LoadProduct(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("load product %s: %w", productPath, err)
		}
		opts = append(opts, activity.WithProduct(product))
	}
	assembler, err := activity.New(opts...)
	if err != nil {
		return err
	}
	data, err := assembler.Encode(workout)
	if err != nil {
		return err
	}

	if outPath == "" {
		if input == "-" {
			outPath = "activity.fit"
		} else {
			outPath = strings.TrimSuffix(input, filepath.Ext(input)) + ".fit"
		}
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d bytes, %d samples, %d laps)\n", outPath, len(data), len(workout.Records), len(workout.Laps))
	return nil
}
