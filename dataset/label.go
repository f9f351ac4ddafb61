package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

// labelAliases are the column names accepted as the readmission outcome,
// checked in order, case-insensitively.
var labelAliases = []string{
	"readmitted", "readmission", "readmission_30d", "readmitted_30d",
	"is_readmitted", "readmit", "readmit_30d", "readmit_flag", "target",
}

// DetectLabelColumn resolves the outcome column. An explicit name wins
// (matched case-insensitively); otherwise the alias list is tried, then any
// column containing "readmit".
func DetectLabelColumn(columns []string, explicit string) (string, error) {
	if explicit != "" {
		for _, c := range columns {
			if strings.EqualFold(c, explicit) {
				return c, nil
			}
		}
		return "", fmt.Errorf("label column %q not found", explicit)
	}

	lower := make(map[string]string, len(columns))
	for _, c := range columns {
		lower[strings.ToLower(c)] = c
	}
	for _, alias := range labelAliases {
		if c, ok := lower[alias]; ok {
			return c, nil
		}
	}
	for _, c := range columns {
		if strings.Contains(strings.ToLower(c), "readmit") {
			return c, nil
		}
	}
	return "", fmt.Errorf("no label column found; pass one explicitly or rename your target")
}

// ParseLabel maps a raw outcome cell to 0/1. Accepts numerics and the usual
// yes/no spellings; ok is false for anything else.
func ParseLabel(value string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "y", "true", "t", "1":
		return 1, true
	case "no", "n", "false", "f", "0":
		return 0, true
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		if f == 0 {
			return 0, true
		}
		if f == 1 {
			return 1, true
		}
	}
	return 0, false
}
