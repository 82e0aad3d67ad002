package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"hostelcart/internal/config"
	"hostelcart/internal/journal"
	"hostelcart/internal/logging"
)

// Экспорт журнала заказов в Excel за указанный период.
func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	var fromFlag, toFlag string
	flag.StringVar(&fromFlag, "from", "", "period start, YYYY-MM-DD (default: 30 days ago)")
	flag.StringVar(&toFlag, "to", "", "period end, YYYY-MM-DD (default: today)")
	flag.Parse()

	from, to, err := parsePeriod(fromFlag, toFlag)
	if err != nil {
		return err
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := baseLogger.With().Str("component", "export").Logger()

	submissionJournal, err := journal.Open(cfg.Journal.Path, &logger)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer submissionJournal.Close()

	exportPath := cfg.Journal.ExportPath
	if exportPath == "" {
		exportPath = "exports"
	}

	filePath, err := submissionJournal.ExportXLSX(context.Background(), exportPath, from, to.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	fmt.Println(filePath)
	return nil
}

func parsePeriod(fromFlag, toFlag string) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -30)
	to := now

	var err error
	if fromFlag != "" {
		if from, err = time.Parse("2006-01-02", fromFlag); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -from: %w", err)
		}
	}
	if toFlag != "" {
		if to, err = time.Parse("2006-01-02", toFlag); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to: %w", err)
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("-to is before -from")
	}
	return from, to, nil
}
