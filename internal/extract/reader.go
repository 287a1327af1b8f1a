package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Separator is the field delimiter used by every extract vintage.
const Separator = ';'

var ErrMissingColumns = errors.New("missing required columns")

// MissingColumnsError names the file and the mandatory fields it lacks.
type MissingColumnsError struct {
	File   string
	Fields []Field
}

func (e *MissingColumnsError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}
	return fmt.Sprintf("%s in %s: %s (need at least isin, investor_id and date_today)",
		ErrMissingColumns, e.File, strings.Join(names, ", "))
}

func (e *MissingColumnsError) Unwrap() error {
	return ErrMissingColumns
}

// Extract is a parsed source file: its header and raw string rows.
type Extract struct {
	Name   string
	Header []string
	Rows   [][]string
}

// ReadFile opens and parses an extract from disk. Name is the file's base name.
func ReadFile(path string) (*Extract, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open extract: %w", err)
	}
	defer f.Close()

	return Parse(f, filepath.Base(path))
}

// Parse decodes Latin-1 text and splits it on semicolons. Rows shorter than
// the header are allowed; missing cells read as blank.
func Parse(r io.Reader, name string) (*Extract, error) {
	reader := csv.NewReader(transform.NewReader(r, charmap.ISO8859_1.NewDecoder()))
	reader.Comma = Separator
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", name, err)
	}

	ex := &Extract{Name: name, Header: header}
	rowNum := 1 // header is row 1, data starts at row 2
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s row %d: failed to read record: %w", name, rowNum+1, err)
		}
		rowNum++
		ex.Rows = append(ex.Rows, record)
	}
	return ex, nil
}
