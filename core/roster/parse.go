package roster

import "github.com/pkg/errors"

var ErrEmptyInput = errors.New("empty file: a header row is required")

// Result is the outcome of a parse: every problem is collected, none aborts the parse.
type Result struct {
	Students []ImportedStudent `json:"students"`
	Errors   []ImportError     `json:"errors"`
	Warnings []string          `json:"warnings"`
	Summary  Summary           `json:"summary"`
}

// HasErrors reports whether at least one row was rejected.
func (r Result) HasErrors() bool { return len(r.Errors) > 0 }

// Parse reads data with src and validates every data row.
func Parse(data []byte, src RowSource, v RecordValidator) (Result, error) {
	rows, err := src.Rows(data)
	if err != nil {
		return Result{}, err
	}
	return ParseRows(rows, v)
}

// ParseRows validates rows produced by a RowSource, the first one being the header.
// All-empty rows are skipped before the column count check; a row whose column count differs
// from the header's yields a single "general" error and is not validated further.
func ParseRows(rows []RawRow, v RecordValidator) (Result, error) {
	if len(rows) == 0 {
		return Result{}, ErrEmptyInput
	}

	header := rows[0]
	mapping, warnings := NormalizeHeader(header.Cells)
	if warnings == nil {
		warnings = []string{}
	}
	res := Result{
		Students: []ImportedStudent{},
		Errors:   []ImportError{},
		Warnings: warnings,
	}

	dataRows := rows[1:]
	var skipped int
	for _, row := range dataRows {
		if row.IsBlank() {
			skipped++
			continue
		}
		if len(row.Cells) != len(header.Cells) {
			res.Errors = append(res.Errors, ImportError{Row: row.Line, Field: FieldGeneral, Message: MsgColumnMismatch})
			continue
		}
		rec, errs := v.Validate(row, mapping)
		if len(errs) > 0 {
			res.Errors = append(res.Errors, errs...)
			continue
		}
		res.Students = append(res.Students, rec)
	}

	res.Summary = BuildSummary(len(dataRows), skipped, res.Students, res.Errors)
	return res, nil
}
