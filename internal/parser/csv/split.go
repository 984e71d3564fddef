package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// SplitMultiValue tokenises a single cell using delim as the separator and the
// usual CSV quoting rules, so a value containing the delimiter can be quoted.
// An empty cell yields an empty, non-nil slice. Only the first line of the
// cell is considered a record; quoted line breaks stay inside their value.
func SplitMultiValue(cell string, delim rune, lazyQuotes bool) ([]string, error) {
	if cell == "" {
		return []string{}, nil
	}
	if err := ValidDelimiter(delim); err != nil {
		return nil, err
	}

	cr := csv.NewReader(strings.NewReader(cell))
	cr.Comma = delim
	cr.LazyQuotes = lazyQuotes
	cr.FieldsPerRecord = -1

	vals, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("split multi-value cell: %w", err)
	}
	return vals, nil
}
