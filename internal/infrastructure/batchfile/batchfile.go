package batchfile

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/foodnutrition/pipeline/internal/domain"
	"github.com/foodnutrition/pipeline/internal/infrastructure/recordstore"
)

// Table is a header plus rows keyed by column name
type Table struct {
	Path    string
	Headers []string
	Rows    []map[string]string
}

// Has reports whether the table carries a column
func (t *Table) Has(column string) bool {
	for _, h := range t.Headers {
		if h == column {
			return true
		}
	}
	return false
}

// ReadTable reads a comma-separated file. Files whose header line contains the
// store delimiter "||" are read as delimited text instead, so scraped exports
// in that format load the same way.
func ReadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBatchFormat, err)
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	firstLine := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		firstLine = data[:i]
	}

	var headers []string
	var records [][]string
	if bytes.Contains(firstLine, []byte("||")) {
		headers, records, err = readDelimited(bytes.NewReader(data))
	} else {
		headers, records, err = readCSV(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrBatchFormat, path, err)
	}

	t := &Table{Path: path, Headers: headers, Rows: make([]map[string]string, 0, len(records))}
	for _, rec := range records {
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func readCSV(r io.Reader) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("missing header row")
	}
	return trimAll(all[0]), all[1:], nil
}

func readDelimited(r io.Reader) ([]string, [][]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var headers []string
	var records [][]string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := recordstore.SplitLine(line)
		if headers == nil {
			headers = trimAll(fields)
			continue
		}
		records = append(records, fields)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	if headers == nil {
		return nil, nil, fmt.Errorf("missing header row")
	}
	return headers, records, nil
}

func trimAll(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimSpace(f)
	}
	return out
}

// WriteTable writes rows as CSV in header order, creating parent directories
func WriteTable(path string, headers []string, rows []map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		f.Close()
		return err
	}
	record := make([]string, len(headers))
	for _, row := range rows {
		for i, h := range headers {
			record[i] = row[h]
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
