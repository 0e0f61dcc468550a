package pipeline

import (
	"errors"

	"github.com/aluiziolira/go-scrape-market/models"
)

// MultiWriter sends every batch to each of its writers. A failing writer
// does not stop the others from receiving the batch.
type MultiWriter []OutputWriter

// NewDualWriter exports to a CSV file and a JSONL file.
func NewDualWriter(csvPath, jsonPath string) (MultiWriter, error) {
	csvWriter, err := NewCSVWriter(csvPath)
	if err != nil {
		return nil, err
	}
	jsonWriter, err := NewJSONWriter(jsonPath)
	if err != nil {
		csvWriter.Close()
		return nil, err
	}
	return MultiWriter{csvWriter, jsonWriter}, nil
}

func (m MultiWriter) Write(products []*models.Product) error {
	return m.each(func(w OutputWriter) error { return w.Write(products) })
}

func (m MultiWriter) Close() error {
	return m.each(OutputWriter.Close)
}

func (m MultiWriter) Validate() error {
	return m.each(OutputWriter.Validate)
}

func (m MultiWriter) each(fn func(OutputWriter) error) error {
	var errs []error
	for _, w := range m {
		if err := fn(w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
