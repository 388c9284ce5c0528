// Command reverb-preprocess builds the dry/wet training dataset from a
// directory of recordings.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	reverb "github.com/tphakala/go-reverb-emulator"
	"github.com/tphakala/go-reverb-emulator/internal/logging"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		envFile    = flag.String("env", ".env", "dotenv file, ignored when missing")
		inputDir   = flag.String("input", "", "Directory of source recordings (overrides preprocess.input_dir)")
		output     = flag.String("output", "", "Dataset container path (overrides general.dataset_path)")
		fixedTail  = flag.Int("fixed-tail", -1, "Tail length in samples; 0 estimates it (overrides preprocess.fixed_tail)")
		keepShort  = flag.Bool("keep-short", false, "Keep the short-segment directory")
	)
	flag.Parse()

	cfg, err := reverb.LoadConfig(*configPath, *envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *inputDir != "" {
		cfg.Preprocess.InputDir = *inputDir
	}
	if *output != "" {
		cfg.General.DatasetPath = *output
	}
	if *fixedTail >= 0 {
		cfg.Preprocess.FixedTail = *fixedTail
	}
	if *keepShort {
		cfg.Preprocess.KeepShort = true
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg reverb.Config) error {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := reverb.Preprocess(ctx, cfg, logger)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"tail":           rep.Tail,
		"segment_length": rep.SegmentLength,
		"sources":        rep.Sources,
		"full":           rep.FullSegments,
		"short":          rep.ShortSegments,
		"agglomerated":   rep.Agglomerated,
		"pairs":          rep.WetFiles,
		"dataset":        rep.DatasetPath,
		"duration":       rep.Duration.Round(time.Millisecond),
	}).Info("preprocessing complete")
	return nil
}
