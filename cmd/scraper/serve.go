package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-market/api"
	"github.com/aluiziolira/go-scrape-market/jobs"
	"github.com/aluiziolira/go-scrape-market/pipeline"
	"github.com/aluiziolira/go-scrape-market/search"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		exportDir string
		format    string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run due scheduled tasks and serve the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, exportDir, format)
		},
	}
	cmd.Flags().StringVar(&exportDir, "export-dir", "data/exports", "directory for task exports (empty disables export)")
	cmd.Flags().StringVar(&format, "format", pipeline.FormatCSV, "export format: csv, jsonl or both")
	return cmd
}

func (a *app) serve(ctx context.Context, exportDir, format string) error {
	cfg := a.cfg
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	comp, err := a.buildFetcher(ctx)
	if err != nil {
		return err
	}
	defer comp.Close(context.WithoutCancel(ctx))

	sched, taskCheck, release, err := a.openScheduler(ctx)
	if err != nil {
		return err
	}
	defer release()

	opts := make([]api.Option, 0, len(comp.checks)+1)
	for name, check := range comp.checks {
		opts = append(opts, api.WithHealthCheck(name, check))
	}
	if taskCheck != nil {
		opts = append(opts, api.WithHealthCheck("postgres", taskCheck))
	}
	server := api.NewServer(cfg.MetricsAddr, sched, comp.fetcher, comp.metrics, opts...)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("admin api listening", slog.String("addr", cfg.MetricsAddr))
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	runnerDone := make(chan error, 1)
	if cfg.SchedulerEnabled {
		runnerOpts := []jobs.Option{jobs.WithMetrics(comp.metrics)}
		if exportDir != "" {
			runnerOpts = append(runnerOpts, jobs.WithExporter(jobs.FileExporter{Dir: exportDir, Format: format}))
		}
		service := search.NewService(comp.fetcher, cfg.BaseURL, cfg.MaxPages)
		runner := jobs.NewRunner(sched, service, cfg.PollInterval, runnerOpts...)
		go func() { runnerDone <- runner.Run(ctx) }()
	} else {
		slog.Info("scheduler disabled, serving admin api only")
		go func() {
			<-ctx.Done()
			runnerDone <- nil
		}()
	}

	var runErr error
	select {
	case err, ok := <-serverErr:
		if ok {
			runErr = err
			slog.Error("admin api failed", slog.Any("error", err))
		}
		cancel()
		<-runnerDone
	case runErr = <-runnerDone:
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("admin api shutdown failed", slog.Any("error", err))
	}
	return runErr
}
