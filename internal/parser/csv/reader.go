// Package csv reads delimited text row by row for the harvester. It wraps
// encoding/csv in a pull-style Reader that resolves the header once and then
// hands out raw rows, and it provides SplitMultiValue for cells that hold
// several values joined by a secondary delimiter.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// ErrNoHeader is returned by NewReader when the header row is required but
// the input is empty.
var ErrNoHeader = errors.New("csv: input has no header row")

// Options configures a Reader. The zero value reads comma-separated input and
// expects the first row to be the header.
type Options struct {
	// Comma is the field delimiter. When zero, ',' is used.
	Comma rune

	// NoHeaderRow means the input has no header line; Header must then name
	// the columns.
	NoHeaderRow bool

	// Header is used as the column list when NoHeaderRow is set.
	Header []string

	// LazyQuotes is passed through to encoding/csv.
	LazyQuotes bool

	// TrimSpace trims leading/trailing white space from every data cell.
	TrimSpace bool
}

// Reader yields rows from delimited text. Rows may be shorter or longer than
// the header; callers decide what to do with missing or extra cells. Reader
// is not safe for concurrent use.
type Reader struct {
	cr     *csv.Reader
	header []string
	trim   bool
	line   int
}

// ValidDelimiter reports whether r can be used as a field delimiter.
func ValidDelimiter(r rune) error {
	if r == 0 || r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError || !utf8.ValidRune(r) {
		return fmt.Errorf("csv: invalid delimiter %q", r)
	}
	return nil
}

// NewReader builds a Reader over r and resolves the header: it is read from
// the first row (with a leading BOM removed) unless opt.NoHeaderRow is set, in
// which case opt.Header is used as given.
func NewReader(r io.Reader, opt Options) (*Reader, error) {
	comma := opt.Comma
	if comma == 0 {
		comma = ','
	}
	if err := ValidDelimiter(comma); err != nil {
		return nil, err
	}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1 // width is not enforced

	rd := &Reader{cr: cr, trim: opt.TrimSpace}

	if opt.NoHeaderRow {
		if len(opt.Header) == 0 {
			return nil, errors.New("csv: header list is required when the input has no header row")
		}
		rd.header = append([]string(nil), opt.Header...)
		return rd, nil
	}

	h, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	rd.line = 1
	rd.header = StripHeaderBOM(append([]string(nil), h...))
	return rd, nil
}

// Header returns the resolved column names in positional order. Names are not
// required to be unique.
func (r *Reader) Header() []string { return r.header }

// Line returns the number of records consumed so far, header included.
func (r *Reader) Line() int { return r.line }

// Next returns the next data row or io.EOF once the input is exhausted.
// Tokenizer errors are returned wrapped with the line number.
func (r *Reader) Next() ([]string, error) {
	rec, err := r.cr.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	r.line++
	if err != nil {
		return nil, fmt.Errorf("csv line %d: %w", r.line, err)
	}
	if r.trim {
		for i, v := range rec {
			rec[i] = strings.TrimSpace(v)
		}
	}
	return rec, nil
}
