// Command reverb-train fits the reverb emulator to a preprocessed dataset.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	reverb "github.com/tphakala/go-reverb-emulator"
	"github.com/tphakala/go-reverb-emulator/internal/logging"
	"github.com/tphakala/go-reverb-emulator/internal/train"
)

func main() {
	var (
		configPath  = flag.String("config", "", "YAML configuration file")
		envFile     = flag.String("env", ".env", "dotenv file, ignored when missing")
		datasetPath = flag.String("dataset", "", "Dataset container (overrides general.dataset_path)")
		epochs      = flag.Int("epochs", 0, "Number of epochs (overrides train.epochs)")
		variational = flag.Bool("variational", false, "Train the variational model")
		logDir      = flag.String("log-dir", "", "Run log directory (overrides train.log_dir)")
	)
	flag.Parse()

	cfg, err := reverb.LoadConfig(*configPath, *envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *datasetPath != "" {
		cfg.General.DatasetPath = *datasetPath
	}
	if *epochs > 0 {
		cfg.Train.Epochs = *epochs
	}
	if *variational {
		cfg.Train.Variational = true
	}
	if *logDir != "" {
		cfg.Train.LogDir = *logDir
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

	res, err := reverb.Train(ctx, cfg, logger)
	if err != nil {
		return err
	}

	fields := logrus.Fields{"run": res.RunID, "dir": res.RunDir, "mode": res.Mode.String()}
	for _, s := range res.Epochs {
		if s.Epoch != cfg.Train.Epochs-1 {
			continue
		}
		if s.Phase == train.Validation {
			fields["val_loss"] = s.Loss
		} else {
			fields["train_loss"] = s.Loss
		}
	}
	logger.WithFields(fields).Info("training complete")
	return nil
}
