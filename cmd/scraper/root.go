package main

import (
	"io"
	"log/slog"

	"github.com/aluiziolira/go-scrape-market/config"
	"github.com/spf13/cobra"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	verbose    bool

	cfg       *config.Config
	logCloser io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "scraper",
		Short: "Rate-limited marketplace scraper",
		Long: `Scraper searches marketplace listings through a fetch layer that
keeps request rates, delays and proxies adapted to how the site responds.

Examples:
  # Search products, export CSV
  scraper search "mate imperial" --pages 3 -o mates.csv

  # List a store's products, cheapest over $5000
  scraper seller "tienda-mate" --min-price 5000

  # Schedule a daily search and run the scheduler with the admin API
  scraper tasks add --type product_search --param query=termo --every daily
  scraper serve`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.init()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ./scraper.yaml if present)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newFetchCmd(a),
		newSearchCmd(a),
		newSellerCmd(a),
		newTasksCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Verbose = true
	}
	a.cfg = cfg

	logger, level, closer := newLogger(cfg.Verbose, cfg.LogFile)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())
	a.logCloser = closer
	return nil
}
