package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/romangod6/site-mapper/config"
	"github.com/romangod6/site-mapper/internal/generator"
	"github.com/romangod6/site-mapper/internal/storage"
	"github.com/romangod6/site-mapper/internal/utils"
	"github.com/spf13/pflag"
)

func main() {
	flags := config.Flags()
	record := flags.Bool("record", false, "Record the run in the configured database")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	output, err := run(flags, *record)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("SiteMap generated at %s\n", output)
}

// run generates the sitemap and returns its path. Every resource it opens is
// closed before it returns.
func run(flags *pflag.FlagSet, record bool) (string, error) {
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return "", err
	}

	logger, err := utils.NewRunLogger(cfg.Sitemap.Domain, cfg.Logging.Dir, cfg.Sitemap.Quiet)
	if err != nil {
		return "", fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	var store storage.Store
	if record {
		store, err = storage.Open(cfg.Database.Driver, cfg.Database.URL)
		if err != nil {
			return "", fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := generator.New(cfg, store, logger).Run(ctx, generator.Request{})
	if err != nil {
		return "", err
	}
	return result.Output, nil
}
