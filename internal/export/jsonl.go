package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gastronom/catalog-crawler/internal/catalog"
)

// JSONLWriter appends one JSON object per line. Safe for concurrent Store
// calls.
type JSONLWriter struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewJSONLWriter creates (or truncates) the file at path.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create jsonl file: %w", err)
	}
	return &JSONLWriter{file: f, encoder: json.NewEncoder(f)}, nil
}

// Store appends one record line.
func (j *JSONLWriter) Store(_ context.Context, p catalog.Product) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.encoder.Encode(p); err != nil {
		return fmt.Errorf("write jsonl record: %w", err)
	}
	return nil
}

// Close closes the file.
func (j *JSONLWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
