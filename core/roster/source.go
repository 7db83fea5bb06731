package roster

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// Format selects the RowSource used to read an import file.
type Format string

const (
	FormatNaive Format = "naive" // literal comma/newline split, no quoting
	FormatCSV   Format = "csv"   // RFC 4180 with lazy quotes
	FormatXLSX  Format = "xlsx"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrUnreadableFile    = errors.New("unreadable file")
)

// RawRow is one non-blank input row. Line is its 1-based position in the file (header = 1).
type RawRow struct {
	Line  int
	Cells []string
}

// IsBlank reports whether every cell is empty after trimming.
func (r RawRow) IsBlank() bool {
	for _, c := range r.Cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// RowSource produces the non-blank rows of an import file, header first, cells trimmed.
type RowSource interface {
	Rows(data []byte) ([]RawRow, error)
}

// ParseFormat validates a user supplied format name. An empty name returns fallback.
func ParseFormat(name string, fallback Format) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return fallback, nil
	case FormatNaive, FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedFormat, "%q", name)
	}
}

// DetectFormat picks the format from the file name: spreadsheets by extension, text files use fallback.
func DetectFormat(filename string, fallback Format) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return fallback
	}
}

// NewRowSource returns the RowSource for f.
func NewRowSource(f Format) (RowSource, error) {
	switch f {
	case FormatNaive, "":
		return NaiveSource{}, nil
	case FormatCSV:
		return CSVSource{}, nil
	case FormatXLSX:
		return XLSXSource{}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", f)
	}
}

// NaiveSource splits on literal newlines and commas. Quoted commas are not supported.
type NaiveSource struct{}

func (NaiveSource) Rows(data []byte) ([]RawRow, error) {
	lines := strings.Split(string(stripBOM(data)), "\n")
	rows := make([]RawRow, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, RawRow{Line: i + 1, Cells: trimCells(strings.Split(line, ","))})
	}
	return rows, nil
}

// CSVSource reads conformant CSV: quoted fields may hold commas and newlines.
type CSVSource struct{}

func (CSVSource) Rows(data []byte) ([]RawRow, error) {
	r := csv.NewReader(bytes.NewReader(stripBOM(data)))
	r.FieldsPerRecord = -1 // column count is checked by the pipeline
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows []RawRow
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(ErrUnreadableFile, err.Error())
		}
		// whitespace-only lines are blank lines, not rows
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		line, _ := r.FieldPos(0)
		rows = append(rows, RawRow{Line: line, Cells: trimCells(rec)})
	}
	return rows, nil
}

// XLSXSource reads the first sheet of a workbook, or Sheet when set.
// Spreadsheets drop trailing empty cells, so short rows are padded to the header width.
type XLSXSource struct {
	Sheet string
}

func (s XLSXSource) Rows(data []byte) ([]RawRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(ErrUnreadableFile, err.Error())
	}
	defer func() { _ = f.Close() }()

	sheet := s.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil
		}
		sheet = sheets[0]
	}

	sheetRows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrap(ErrUnreadableFile, err.Error())
	}

	var (
		rows  []RawRow
		width int
	)
	for i, cells := range sheetRows {
		row := RawRow{Line: i + 1, Cells: trimCells(cells)}
		if row.IsBlank() {
			continue
		}
		if width == 0 {
			width = len(row.Cells) // header
		} else if len(row.Cells) < width {
			row.Cells = append(row.Cells, make([]string, width-len(row.Cells))...)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte(utf8BOM))
}

func trimCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
