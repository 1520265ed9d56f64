package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"

	"github.com/ganz677/wb/internal/domain"
)

// Table is a raw catalog sheet: the first row is the header.
type Table struct {
	Header []string
	Rows   [][]string
}

func (t Table) cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// column returns the non-empty trimmed values of a column.
func (t Table) column(idx int) []string {
	values := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if v := t.cell(row, idx); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// Load reads the catalog file and builds the index. Supported formats are .xlsx and .csv.
func Load(path string) (*Index, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &domain.ConfigurationError{Field: "catalog.path", Reason: "catalog file path is not set"}
	}

	table, err := ReadTable(path)
	if err != nil {
		return nil, err
	}

	return Build(table)
}

// ReadTable loads the first sheet of an .xlsx file or a whole .csv file.
func ReadTable(path string) (Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readXLSX(path)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return Table{}, &domain.ConfigurationError{Field: "catalog.path", Reason: err.Error()}
		}
		defer f.Close()
		return readCSV(f)
	default:
		return Table{}, &domain.ConfigurationError{Field: "catalog.path", Reason: fmt.Sprintf("unsupported catalog format %q", filepath.Ext(path))}
	}
}

func readXLSX(path string) (Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Table{}, &domain.ConfigurationError{Field: "catalog.path", Reason: err.Error()}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, &domain.ConfigurationError{Field: "catalog.path", Reason: "workbook has no sheets"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}

	return toTable(rows), nil
}

func readCSV(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, record)
	}

	return toTable(rows), nil
}

func toTable(rows [][]string) Table {
	if len(rows) == 0 {
		return Table{}
	}

	header := make([]string, len(rows[0]))
	for i, name := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}

	return Table{Header: header, Rows: rows[1:]}
}

// plainText drops HTML markup that marketplace exports leave in descriptions.
func plainText(value string) string {
	if !strings.ContainsAny(value, "<&") {
		return value
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(value))
	if err != nil {
		return value
	}

	return doc.Text()
}
