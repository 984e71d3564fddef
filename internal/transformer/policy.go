package transformer

import (
	"fmt"
	"strings"
)

type nameSet map[string]struct{}

func (s nameSet) has(name string) bool {
	_, ok := s[name]
	return ok
}

// ColumnPolicy classifies header columns. It is immutable once built.
type ColumnPolicy struct {
	header     nameSet
	included   nameSet // empty means every header column
	ignored    nameSet
	multiValue nameSet
	filtered   nameSet
}

// NewColumnPolicy resolves the include, ignore and multi-value lists against
// header. Every listed name must exist in the header. Ignored columns are
// never emitted even when also included; an empty include list makes every
// header column a candidate for inclusion.
func NewColumnPolicy(header, included, ignored, multiValue []string, filters FilterTable) (*ColumnPolicy, error) {
	p := &ColumnPolicy{
		header:   make(nameSet, len(header)),
		filtered: make(nameSet, len(filters)),
	}
	for _, h := range header {
		p.header[h] = struct{}{}
	}

	var err error
	if p.included, err = p.resolve("includedFields", included); err != nil {
		return nil, err
	}
	if p.ignored, err = p.resolve("ignoreFields", ignored); err != nil {
		return nil, err
	}
	if p.multiValue, err = p.resolve("multiValueFields", multiValue); err != nil {
		return nil, err
	}
	for field, fs := range filters {
		if len(fs) > 0 {
			p.filtered[field] = struct{}{}
		}
	}
	return p, nil
}

func (p *ColumnPolicy) resolve(list string, names []string) (nameSet, error) {
	set := make(nameSet, len(names))
	var unknown []string
	for _, n := range names {
		if !p.header.has(n) {
			unknown = append(unknown, n)
			continue
		}
		set[n] = struct{}{}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%s: unknown column(s) %s", list, strings.Join(unknown, ", "))
	}
	return set, nil
}

// Classify returns the role of the named column.
func (p *ColumnPolicy) Classify(name string) Class {
	if p.isIncluded(name) {
		return ClassInclude
	}
	if p.filtered.has(name) {
		return ClassFilterOnly
	}
	return ClassSkip
}

func (p *ColumnPolicy) isIncluded(name string) bool {
	if p.ignored.has(name) {
		return false
	}
	if len(p.included) == 0 {
		return p.header.has(name)
	}
	return p.included.has(name)
}

// IsMultiValue reports whether the column was declared multi-value.
func (p *ColumnPolicy) IsMultiValue(name string) bool {
	return p.multiValue.has(name)
}
