package domain

// NormalizedRow is one validated input record ready for upsert.
type NormalizedRow struct {
	SKU         string
	Name        string
	Description string
	Price       float64
	Active      bool
}

// RowOutcome is the result of validating one raw record: either a
// normalized row or a rejection with the 1-based row number it refers to.
type RowOutcome struct {
	Row       NormalizedRow
	Reason    string
	RowNumber int
	Valid     bool
}

// ValidRow wraps a normalized row in a successful outcome.
func ValidRow(row NormalizedRow) RowOutcome {
	return RowOutcome{Row: row, Valid: true}
}

// RejectedRow records a validation failure for the given row number.
func RejectedRow(rowNumber int, reason string) RowOutcome {
	return RowOutcome{Reason: reason, RowNumber: rowNumber}
}
