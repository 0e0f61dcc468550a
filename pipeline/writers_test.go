package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
)

func sampleProduct() *models.Product {
	return &models.Product{
		Title:     "Mate Imperial",
		Price:     25500,
		Seller:    "Tienda Mate",
		Sales:     5000,
		Link:      "https://articulo.test/MLA-1",
		Image:     "https://img.test/1.jpg",
		ScrapedAt: time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC),
	}
}

func TestCSVWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "products.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write([]*models.Product{sampleProduct()}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][0] != "title" || records[0][1] != "price" || records[0][2] != "seller" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][1] != "25500" || records[1][3] != "5000" || records[1][6] != "2025-11-04T13:09:13Z" {
		t.Fatalf("unexpected row: %v", records[1])
	}
}

func TestJSONWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write([]*models.Product{sampleProduct(), sampleProduct()}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var decoded models.Product
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		if decoded.Price != 25500 || decoded.Seller != "Tienda Mate" {
			t.Fatalf("decoded = %+v", decoded)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if count != 2 {
		t.Fatalf("json lines=%d, want 2", count)
	}
}

func TestNewWriterFormats(t *testing.T) {
	dir := t.TempDir()

	both, err := NewWriter(FormatBoth, filepath.Join(dir, "mate.out"))
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := both.Write([]*models.Product{sampleProduct()}); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := both.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := both.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}
	for _, name := range []string{"mate.csv", "mate.jsonl"} {
		if info, err := os.Stat(filepath.Join(dir, name)); err != nil || info.Size() == 0 {
			t.Fatalf("%s missing or empty", name)
		}
	}

	if _, err := NewWriter("xlsx", filepath.Join(dir, "x")); err == nil {
		t.Fatalf("unknown format should fail")
	}
}

func TestValidateRequiresRecords(t *testing.T) {
	writer, err := NewJSONWriter(filepath.Join(t.TempDir(), "empty.jsonl"))
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	defer writer.Close()

	if err := writer.Validate(); err == nil {
		t.Fatalf("validate should fail before any write")
	}
	if err := writer.Write([]*models.Product{sampleProduct()}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate after write: %v", err)
	}
	if writer.Records() != 1 {
		t.Fatalf("records = %d, want 1", writer.Records())
	}
}

func TestMultiWriterKeepsWritingAfterFailure(t *testing.T) {
	good := &mockWriter{}
	multi := MultiWriter{failingWriter{}, good}

	if err := multi.Write([]*models.Product{sampleProduct()}); err == nil {
		t.Fatalf("expected the failing writer's error")
	}
	if good.totalWritten() != 1 {
		t.Fatalf("healthy writer got %d products, want 1", good.totalWritten())
	}
}
