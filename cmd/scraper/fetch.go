package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aluiziolira/go-scrape-market/scraper"
	"github.com/spf13/cobra"
)

func newFetchCmd(a *app) *cobra.Command {
	var (
		opts   scraper.RequestOptions
		output string
	)
	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Fetch one page through the rate-limited fetcher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			comp, err := a.buildFetcher(ctx)
			if err != nil {
				return err
			}
			defer comp.Close(context.WithoutCancel(ctx))

			body, err := comp.fetcher.Fetch(ctx, args[0], opts)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), body)
				return err
			}
			return os.WriteFile(output, []byte(body), 0o644)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.NoCache, "no-cache", false, "skip the cache lookup")
	flags.BoolVar(&opts.ForceNew, "force", false, "refetch even when a fresh cached copy exists")
	flags.StringVarP(&output, "output", "o", "", "write the body to a file instead of stdout")
	return cmd
}
