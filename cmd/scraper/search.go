package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aluiziolira/go-scrape-market/jobs"
	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/aluiziolira/go-scrape-market/pipeline"
	"github.com/aluiziolira/go-scrape-market/search"
	"github.com/spf13/cobra"
)

type searchFlags struct {
	params search.Params
	output string
	format string
}

func (f *searchFlags) register(cmd *cobra.Command, withSeller bool) {
	flags := cmd.Flags()
	flags.IntVar(&f.params.MaxPages, "pages", 0, "result pages to scan (default from config)")
	flags.BoolVar(&f.params.ExactMatch, "exact", false, "keep only titles similar to the query")
	flags.IntVar(&f.params.MinPrice, "min-price", 0, "minimum price")
	flags.IntVar(&f.params.MinSales, "min-sales", 0, "minimum units sold")
	if withSeller {
		flags.StringVar(&f.params.Seller, "seller", "", "keep only sellers containing this text")
	}
	flags.StringVarP(&f.output, "output", "o", "", "export products to this file")
	flags.StringVar(&f.format, "format", pipeline.FormatCSV, "export format: csv, jsonl or both")
}

func newSearchCmd(a *app) *cobra.Command {
	f := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search products across result pages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.params.Query = strings.Join(args, " ")
			return a.runSearch(cmd, f, func(ctx context.Context, s *search.Service) (*models.SearchResult, error) {
				return s.Products(ctx, f.params)
			})
		},
	}
	f.register(cmd, true)
	return cmd
}

func newSellerCmd(a *app) *cobra.Command {
	f := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "seller NAME",
		Short: "List a seller's store, most expensive first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(cmd, f, func(ctx context.Context, s *search.Service) (*models.SearchResult, error) {
				return s.Seller(ctx, args[0], f.params)
			})
		},
	}
	f.register(cmd, false)
	return cmd
}

func (a *app) runSearch(cmd *cobra.Command, f *searchFlags, run func(context.Context, *search.Service) (*models.SearchResult, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comp, err := a.buildFetcher(ctx)
	if err != nil {
		return err
	}
	defer comp.Close(context.WithoutCancel(ctx))

	stopMetrics := startMetricsServer(a.cfg.MetricsAddr, comp.metrics)
	defer stopMetrics()

	service := search.NewService(comp.fetcher, a.cfg.BaseURL, a.cfg.MaxPages)
	result, err := run(ctx, service)
	if err != nil {
		return err
	}

	if f.output != "" && len(result.Products) > 0 {
		if err := jobs.WriteProducts(ctx, f.format, f.output, result.Products); err != nil {
			return err
		}
	}
	printSummary(cmd.OutOrStdout(), result, f.output)
	return nil
}
