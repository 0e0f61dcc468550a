package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/aluiziolira/go-scrape-market/pipeline"
)

// FileExporter writes each run into Dir through the product pipeline.
type FileExporter struct {
	Dir    string
	Format string
}

// Export writes result.Products to <dir>/<task>-<timestamp>.<ext>.
func (e FileExporter) Export(ctx context.Context, task models.ScheduledTask, result *models.SearchResult) (string, error) {
	format := e.Format
	if format == "" {
		format = pipeline.FormatCSV
	}
	ext := format
	if format == pipeline.FormatBoth {
		ext = "out"
	}
	path := filepath.Join(e.Dir, fmt.Sprintf("%s-%s.%s", task.ID, result.StartTime.Format("20060102-150405"), ext))
	if err := WriteProducts(ctx, format, path, result.Products); err != nil {
		return "", err
	}
	return path, nil
}

// WriteProducts validates, de-duplicates and writes products to path.
func WriteProducts(ctx context.Context, format, path string, products []*models.Product) error {
	writer, err := pipeline.NewWriter(format, path)
	if err != nil {
		return err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.String("path", path), slog.Any("error", err))
		}
	}()

	p := pipeline.NewPipeline(ctx, writer, pipeline.DefaultOptions())
	p.Start(1)
	processErr := p.Process(products...)
	if err := p.Close(); err != nil {
		return err
	}
	if processErr != nil {
		return processErr
	}
	stats := p.Stats()
	slog.Debug("products exported",
		slog.String("path", path),
		slog.Int64("written", stats.Written),
		slog.Int64("invalid", stats.Invalid),
		slog.Int64("duplicates", stats.Duplicates),
	)
	return writer.Validate()
}
