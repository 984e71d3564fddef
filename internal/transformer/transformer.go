// Package transformer turns raw CSV rows into harvest records.
//
// The pieces are resolved once against the source header and then applied to
// every row without further configuration lookups:
//
//   - ColumnPolicy decides, per column name, whether the value is emitted,
//     only used for filtering, or skipped.
//   - FilterTable holds the compiled regular-expression filters bound to
//     columns; every filter must pass for a row to be kept.
//   - RecordBuilder walks a row in column order, splits multi-value cells,
//     evaluates filters and produces a Record with its identifier and
//     storage key.
package transformer

// Class is the role a column plays when building a record.
type Class uint8

const (
	// ClassSkip columns are neither emitted nor inspected.
	ClassSkip Class = iota
	// ClassFilterOnly columns are evaluated by filters but not emitted.
	ClassFilterOnly
	// ClassInclude columns are emitted into the record data.
	ClassInclude
)

func (c Class) String() string {
	switch c {
	case ClassInclude:
		return "include"
	case ClassFilterOnly:
		return "filter-only"
	default:
		return "skip"
	}
}
