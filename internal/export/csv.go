// Package export persists accepted product records to CSV and JSONL files.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gastronom/catalog-crawler/internal/catalog"
)

var csvHeader = []string{
	"id", "name", "price", "category", "url", "photo_url",
	"composition", "tags", "weight", "energy_100g", "protein_100g",
	"fat_100g", "carbs_100g",
}

// CSVWriter appends product rows to a CSV file, writing the header once.
// Safe for concurrent Store calls.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the file at path and writes the
// header row.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return &CSVWriter{file: f, writer: w}, nil
}

// Store appends one product row.
func (c *CSVWriter) Store(_ context.Context, p catalog.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	row := []string{
		p.ID, p.Name, p.Price, p.Category, p.URL, p.PhotoURL,
		p.Composition, strings.Join(p.Tags, ";"), p.Weight,
		p.Energy, p.Protein, p.Fat, p.Carbs,
	}
	if err := c.writer.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	return nil
}

// Close flushes buffered rows and closes the file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		c.file.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	return c.file.Close()
}
