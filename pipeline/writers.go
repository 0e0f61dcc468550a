package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
)

// Output formats accepted by NewWriter.
const (
	FormatCSV  = "csv"
	FormatJSON = "jsonl"
	FormatBoth = "both"
)

var csvHeader = []string{"title", "price", "seller", "sales", "link", "image", "scraped_at"}

type recordEncoder interface {
	encode(p *models.Product) error
	flush() error
}

type csvEncoder struct {
	w *csv.Writer
}

func newCSVEncoder(w io.Writer) (recordEncoder, error) {
	enc := &csvEncoder{w: csv.NewWriter(w)}
	if err := enc.w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return enc, enc.flush()
}

func (e *csvEncoder) encode(p *models.Product) error {
	return e.w.Write([]string{
		p.Title,
		strconv.Itoa(p.Price),
		p.Seller,
		strconv.Itoa(p.Sales),
		p.Link,
		p.Image,
		p.ScrapedAt.Format(time.RFC3339),
	})
}

func (e *csvEncoder) flush() error {
	e.w.Flush()
	return e.w.Error()
}

type jsonlEncoder struct {
	enc *json.Encoder
}

func newJSONLEncoder(w io.Writer) (recordEncoder, error) {
	return jsonlEncoder{enc: json.NewEncoder(w)}, nil
}

func (e jsonlEncoder) encode(p *models.Product) error { return e.enc.Encode(p) }

func (jsonlEncoder) flush() error { return nil }

// FileWriter appends product batches to one file. Every Write is flushed to
// disk before it returns.
type FileWriter struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	buf     *bufio.Writer
	enc     recordEncoder
	records int
}

// NewCSVWriter creates path with a header row.
func NewCSVWriter(path string) (*FileWriter, error) {
	return openFileWriter(path, newCSVEncoder)
}

// NewJSONWriter creates path for newline-delimited JSON records.
func NewJSONWriter(path string) (*FileWriter, error) {
	return openFileWriter(path, newJSONLEncoder)
}

func openFileWriter(path string, newEncoder func(io.Writer) (recordEncoder, error)) (*FileWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	w := &FileWriter{path: path, file: f, buf: bufio.NewWriter(f)}
	if w.enc, err = newEncoder(w.buf); err == nil {
		err = w.buf.Flush()
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Write encodes products and flushes them.
func (w *FileWriter) Write(products []*models.Product) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range products {
		if err := w.enc.encode(p); err != nil {
			return fmt.Errorf("encode record for %s: %w", w.path, err)
		}
	}
	if err := w.flushLocked(); err != nil {
		return err
	}
	w.records += len(products)
	return nil
}

// Records is the number of products written so far.
func (w *FileWriter) Records() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flushLocked(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// Validate fails when no product reached the file.
func (w *FileWriter) Validate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.records == 0 {
		return fmt.Errorf("no records written to %s", w.path)
	}
	return nil
}

func (w *FileWriter) flushLocked() error {
	if err := w.enc.flush(); err != nil {
		return fmt.Errorf("flush %s: %w", w.path, err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", w.path, err)
	}
	return nil
}

// NewWriter opens a writer for format. For FormatBoth, path is a base name
// whose extension is replaced by ".csv" and ".jsonl".
func NewWriter(format, path string) (OutputWriter, error) {
	switch format {
	case FormatCSV:
		return NewCSVWriter(path)
	case FormatJSON, "json":
		return NewJSONWriter(path)
	case FormatBoth:
		base := strings.TrimSuffix(path, filepath.Ext(path))
		return NewDualWriter(base+".csv", base+".jsonl")
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}
