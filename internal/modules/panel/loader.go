package panel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
)

// Loader reads the per-asset raw price files of a directory and combines them
// into one slice of raw rows. Supported formats are CSV and XLSX (first sheet),
// both with a header row.
type Loader struct {
	workers int
	log     zerolog.Logger
}

// NewLoader creates a loader reading at most workers files at a time.
func NewLoader(workers int, log zerolog.Logger) *Loader {
	if workers <= 0 {
		workers = 1
	}
	return &Loader{
		workers: workers,
		log:     log.With().Str("component", "panel_loader").Logger(),
	}
}

// Load reads every supported file in dir concurrently. Rows are returned grouped
// by file in lexical file order, so the result does not depend on scheduling.
func (l *Loader) Load(ctx context.Context, dir string) ([]RawRecord, error) {
	files, err := sourceFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no raw price files (*.csv, *.xlsx) found in %s", dir)
	}

	l.log.Info().
		Str("dir", dir).
		Int("files", len(files)).
		Int("workers", l.workers).
		Msg("Loading raw price files")

	perFile := make([][]RawRecord, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rows, err := readFile(path)
			if err != nil {
				return err
			}
			perFile[i] = rows
			l.log.Debug().Str("file", filepath.Base(path)).Int("rows", len(rows)).Msg("Read raw file")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, rows := range perFile {
		total += len(rows)
	}
	combined := make([]RawRecord, 0, total)
	for _, rows := range perFile {
		combined = append(combined, rows...)
	}

	l.log.Info().Int("rows", total).Msg("Loaded raw price files")
	return combined, nil
}

func sourceFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".csv", ".xlsx":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func readFile(path string) ([]RawRecord, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return readSpreadsheet(path)
	}
	return readCSV(path)
}

func readCSV(path string) ([]RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	var rows []RawRecord
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read %s line %d: %w", path, line, err)
		}
		rows = append(rows, toRawRecord(filepath.Base(path), line, header, record))
	}
	return rows, nil
}

func readSpreadsheet(path string) ([]RawRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	all, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s of %s: %w", sheets[0], path, err)
	}
	if len(all) == 0 {
		return nil, nil
	}

	rows := make([]RawRecord, 0, len(all)-1)
	for i, record := range all[1:] {
		rows = append(rows, toRawRecord(filepath.Base(path), i+2, all[0], record))
	}
	return rows, nil
}

// toRawRecord pairs header names with cells. Short rows leave the trailing
// fields empty so the builder reports them as missing.
func toRawRecord(source string, line int, header, record []string) RawRecord {
	fields := make(map[string]string, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		if i < len(record) {
			fields[name] = record[i]
		} else {
			fields[name] = ""
		}
	}
	return RawRecord{Source: source, Line: line, Fields: fields}
}
