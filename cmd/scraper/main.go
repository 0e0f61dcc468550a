package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger logs to stdout and, when logFile is set, to a rotating file.
// The returned closer releases the file.
func newLogger(verbose bool, logFile string) (*slog.Logger, *slog.LevelVar, io.Closer) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if logFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    15, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closer = rotating
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), level, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func printSummary(w io.Writer, result *models.SearchResult, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintf(w, "Search complete: %s\n", result.Query)

	summary := result.Summary
	fmt.Fprintf(w, "  Products:      %d\n", summary.TotalProducts)
	fmt.Fprintf(w, "  Pages:         %d\n", result.PageCount)
	fmt.Fprintf(w, "  Skipped:       %d\n", result.Skipped)
	fmt.Fprintf(w, "  Failed cards:  %d\n", result.Failed)
	if len(result.FailedURLs) > 0 {
		fmt.Fprintf(w, "  Failed pages:  %d\n", len(result.FailedURLs))
	}
	if summary.TotalProducts > 0 {
		fmt.Fprintf(w, "  Average price: $%d\n", summary.AveragePrice)
		fmt.Fprintf(w, "  Cheapest:      $%d %s\n", summary.Cheapest.Price, summary.Cheapest.Title)
		fmt.Fprintf(w, "  Most expensive: $%d %s\n", summary.MostExpensive.Price, summary.MostExpensive.Title)
		fmt.Fprintf(w, "  Total sales:   %d\n", summary.TotalSales)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	if outputFile != "" {
		fmt.Fprintf(w, "  Output file:   %s\n", outputFile)
	}
	fmt.Fprintln(w, separator)
}
