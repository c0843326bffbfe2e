// Package repository persists flattened product records into per-category JSON array files.
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"payngo/scraper/internal/domain"
)

type ProductRepository interface {
	// Reset replaces the file at path with an empty JSON array, creating parent directories.
	Reset(ctx context.Context, path string) error
	// Append adds rec to the JSON array stored at path.
	Append(ctx context.Context, path string, rec *domain.FlattenedRecord) error
	// Count returns the number of records stored at path.
	Count(ctx context.Context, path string) (int, error)
}

type fileRepository struct {
	mu sync.Mutex
}

func NewProductRepository() ProductRepository {
	return &fileRepository{}
}

func (r *fileRepository) Reset(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory for %s: %w", path, err)
	}
	if err := writeRecords(path, []json.RawMessage{}); err != nil {
		return err
	}

	log.Debugf("Reset output file %s", path)
	return nil
}

func (r *fileRepository) Append(ctx context.Context, path string, rec *domain.FlattenedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil {
		return errors.New("nil record")
	}

	encoded, err := rec.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := readRecords(path)
	if err != nil {
		return err
	}
	records = append(records, encoded)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory for %s: %w", path, err)
	}
	return writeRecords(path, records)
}

func (r *fileRepository) Count(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := readRecords(path)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// readRecords treats a missing or blank file as an empty array.
func readRecords(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []json.RawMessage{}, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return records, nil
}

// writeRecords replaces path atomically through a temporary file in the same directory.
func writeRecords(path string, records []json.RawMessage) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
