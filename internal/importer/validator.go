package importer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/acme/importflow/internal/domain"
)

const (
	maxSKULength  = 255
	maxNameLength = 500
)

var requiredFields = []string{"sku", "name"}

// ValidateRow checks one raw record against the import contract. It
// returns false with a human-readable reason on the first violation;
// reasons carry the 1-based row number for traceability.
func ValidateRow(row map[string]string, rowNumber int) (bool, string) {
	for _, field := range requiredFields {
		if strings.TrimSpace(row[field]) == "" {
			return false, fmt.Sprintf("Row %d: Missing required field '%s'", rowNumber, field)
		}
	}

	// Price is optional, but if present it must parse as non-negative.
	if raw := strings.TrimSpace(row["price"]); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return false, fmt.Sprintf("Row %d: Invalid price format", rowNumber)
		}
		if price < 0 {
			return false, fmt.Sprintf("Row %d: Price cannot be negative", rowNumber)
		}
	}

	// Length bounds count characters, matching the varchar columns.
	if utf8.RuneCountInString(strings.TrimSpace(row["sku"])) > maxSKULength {
		return false, fmt.Sprintf("Row %d: SKU too long (max %d characters)", rowNumber, maxSKULength)
	}
	if utf8.RuneCountInString(strings.TrimSpace(row["name"])) > maxNameLength {
		return false, fmt.Sprintf("Row %d: Name too long (max %d characters)", rowNumber, maxNameLength)
	}

	return true, ""
}

// NormalizeRow converts a raw record into its typed form. Absent or
// unparseable prices default to zero; the active flag defaults to true.
func NormalizeRow(row map[string]string) domain.NormalizedRow {
	price := 0.0
	if raw := strings.TrimSpace(row["price"]); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			price = parsed
		}
	}

	active := "true"
	if raw, ok := row["active"]; ok && strings.TrimSpace(raw) != "" {
		active = raw
	}

	return domain.NormalizedRow{
		SKU:         strings.TrimSpace(row["sku"]),
		Name:        strings.TrimSpace(row["name"]),
		Description: strings.TrimSpace(row["description"]),
		Price:       price,
		Active:      isTruthy(active),
	}
}

// CheckRow validates then normalizes, yielding a single outcome value.
func CheckRow(row map[string]string, rowNumber int) domain.RowOutcome {
	ok, reason := ValidateRow(row, rowNumber)
	if !ok {
		return domain.RejectedRow(rowNumber, reason)
	}
	return domain.ValidRow(NormalizeRow(row))
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "active":
		return true
	}
	return false
}
