package transformer

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"csvharvest/internal/parser/csv"
)

// MetadataIdentifier is the metadata key carrying the prefixed identifier.
const MetadataIdentifier = "dc.identifier"

// Record is one harvested row ready to be merged into the store.
type Record struct {
	// ID is the prefixed record identifier.
	ID string
	// OID is the storage key, see StorageKey.
	OID string
	// Data values are string, or []string for multi-value columns.
	Data     map[string]any
	Metadata map[string]any
}

// StorageKey derives the stable storage key for a record: the hex MD5 of the
// source name, id prefix and unprefixed identifier concatenated.
func StorageKey(source, prefix, id string) string {
	sum := md5.Sum([]byte(source + prefix + id))
	return hex.EncodeToString(sum[:])
}

// BuilderConfig carries everything a RecordBuilder needs. Header, Policy and
// Filters must have been resolved against the same header.
type BuilderConfig struct {
	Header  []string
	Policy  *ColumnPolicy
	Filters FilterTable

	// IDColumn names the column holding the record identifier. When empty, or
	// when a row does not reach that column, the row ordinal is used.
	IDColumn string
	IDPrefix string

	// SourceName is hashed into the storage key, normally the base name of
	// the source file.
	SourceName string

	MultiValueDelimiter rune
	LazyQuotes          bool
}

// column is the per-position plan compiled once from the header.
type column struct {
	name    string
	class   Class
	multi   bool
	isID    bool
	filters bool
}

// RecordBuilder converts rows into Records. It holds no per-row state and may
// be reused for every row of a source.
type RecordBuilder struct {
	cfg  BuilderConfig
	plan []column
}

// NewRecordBuilder compiles the per-column plan for cfg.Header.
func NewRecordBuilder(cfg BuilderConfig) (*RecordBuilder, error) {
	if cfg.Policy == nil {
		return nil, errors.New("record builder: nil column policy")
	}
	if cfg.MultiValueDelimiter == 0 {
		cfg.MultiValueDelimiter = ';'
	}
	plan := make([]column, len(cfg.Header))
	for i, name := range cfg.Header {
		plan[i] = column{
			name:    name,
			class:   cfg.Policy.Classify(name),
			multi:   cfg.Policy.IsMultiValue(name),
			isID:    cfg.IDColumn != "" && name == cfg.IDColumn,
			filters: len(cfg.Filters[name]) > 0,
		}
	}
	return &RecordBuilder{cfg: cfg, plan: plan}, nil
}

// Build converts row into a Record. ordinal is the 1-based position of the
// row in the whole stream and becomes the identifier when no id column value
// is available. rejected is true when a filter failed; rec is nil then.
// A malformed multi-value cell is returned as an error.
func (b *RecordBuilder) Build(row []string, ordinal int64) (rec *Record, rejected bool, err error) {
	data := make(map[string]any, len(b.plan))
	var (
		idValue string
		idFound bool
	)

	for i, cell := range row {
		if i >= len(b.plan) {
			break
		}
		col := b.plan[i]
		if col.isID {
			idValue, idFound = cell, true
		}
		if col.class == ClassSkip {
			continue
		}

		var value any = cell
		if col.multi {
			vals, err := csv.SplitMultiValue(cell, b.cfg.MultiValueDelimiter, b.cfg.LazyQuotes)
			if err != nil {
				return nil, false, fmt.Errorf("column %q: %w", col.name, err)
			}
			if col.filters && !b.cfg.Filters.PassMulti(col.name, vals) {
				return nil, true, nil
			}
			value = vals
		} else if col.filters && !b.cfg.Filters.Pass(col.name, cell) {
			return nil, true, nil
		}

		if col.class == ClassInclude {
			// Repeated column names overwrite: the last position wins.
			data[col.name] = value
		}
	}

	if !idFound {
		idValue = strconv.FormatInt(ordinal, 10)
	}
	id := b.cfg.IDPrefix + idValue

	return &Record{
		ID:       id,
		OID:      StorageKey(b.cfg.SourceName, b.cfg.IDPrefix, idValue),
		Data:     data,
		Metadata: map[string]any{MetadataIdentifier: id},
	}, false, nil
}
