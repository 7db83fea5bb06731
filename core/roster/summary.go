package roster

// BuildSummary aggregates one parse.
// total is the number of non-blank data lines, including the all-empty-cell rows reported in skipped.
// invalid counts error entries (a row may have several); invalid_rows counts the rows behind them.
func BuildSummary(total, skipped int, valid []ImportedStudent, errs []ImportError) Summary {
	rows := make(map[int]struct{}, len(errs))
	for _, e := range errs {
		rows[e.Row] = struct{}{}
	}
	return Summary{
		Total:       total,
		Valid:       len(valid),
		Invalid:     len(errs),
		InvalidRows: len(rows),
		Skipped:     skipped,
	}
}
