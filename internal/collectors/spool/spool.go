// Package spool collects raw records from JSON files dropped into a
// directory, one directory per source.
package spool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/civicwatch/internal/collectors"
	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
)

// Ensure Collector implements the interface.
var _ driven.Collector = (*Collector)(nil)

// Ext is the extension of spool files.
const Ext = ".json"

// Collector reads every *.json file in the source's directory in name
// order. Files are left in place; unchanged records are recognised by the
// event store.
type Collector struct{}

// New creates a spool collector.
func New() *Collector {
	return &Collector{}
}

// Collect implements driven.Collector. A missing directory is reported as
// domain.ErrSourceUnavailable so it is retried.
func (c *Collector) Collect(ctx context.Context, source *domain.Source) ([]domain.RawRecord, error) {
	dir := source.Collector.Path
	if dir == "" {
		return nil, fmt.Errorf("%w: spool path is empty", domain.ErrInvalidInput)
	}

	files, err := listFiles(dir)
	if err != nil {
		return nil, err
	}

	var records []domain.RawRecord
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", domain.ErrSourceUnavailable, name, err)
		}
		recs, err := collectors.DecodeRecords(source.ID, data, source.Collector.ItemsKey, len(records))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		records = append(records, recs...)
	}
	return records, nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: spool %s does not exist", domain.ErrSourceUnavailable, dir)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsSpoolFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// IsSpoolFile reports whether name is a spool file. Hidden files are
// skipped so writers can stage ".tmp" copies and rename them in.
func IsSpoolFile(name string) bool {
	base := filepath.Base(name)
	return !strings.HasPrefix(base, ".") && strings.EqualFold(filepath.Ext(base), Ext)
}
