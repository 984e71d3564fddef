package transformer

import (
	"fmt"
	"regexp"
	"strings"
)

// MatchMode decides how a filter treats a list of values.
type MatchMode uint8

const (
	// MatchAny passes when at least one value matches.
	MatchAny MatchMode = iota
	// MatchAll passes when every value matches.
	MatchAll
)

func (m MatchMode) String() string {
	if m == MatchAll {
		return "ALL"
	}
	return "ANY"
}

// ParseMatchMode accepts "ANY" or "ALL" in any letter case. An empty string
// selects MatchAny.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ANY":
		return MatchAny, nil
	case "ALL":
		return MatchAll, nil
	}
	return MatchAny, fmt.Errorf("unknown match mode %q (want ANY or ALL)", s)
}

// FilterSpec is the configuration shape of a filter.
type FilterSpec struct {
	Field string `json:"field"`
	Multi string `json:"multi"`
	Regex string `json:"regex"`
}

// Filter is a compiled predicate bound to one column.
type Filter struct {
	Field   string
	Mode    MatchMode
	Pattern *regexp.Regexp
}

// Match reports whether the pattern is found anywhere in value. Patterns are
// not anchored; use ^ and $ for a whole-value match.
func (f *Filter) Match(value string) bool {
	return f.Pattern.MatchString(value)
}

// MatchAll evaluates the filter against a list of values according to its
// mode. An empty list never matches.
func (f *Filter) MatchAll(values []string) bool {
	if len(values) == 0 {
		return false
	}
	switch f.Mode {
	case MatchAll:
		for _, v := range values {
			if !f.Match(v) {
				return false
			}
		}
		return true
	default:
		for _, v := range values {
			if f.Match(v) {
				return true
			}
		}
		return false
	}
}

// FilterTable maps a column name to the filters bound to it.
type FilterTable map[string][]*Filter

// CompileFilters validates specs against header and compiles their patterns.
func CompileFilters(specs []FilterSpec, header []string) (FilterTable, error) {
	known := make(map[string]struct{}, len(header))
	for _, h := range header {
		known[h] = struct{}{}
	}

	ft := make(FilterTable, len(specs))
	for i, s := range specs {
		if s.Field == "" {
			return nil, fmt.Errorf("filters[%d]: missing field", i)
		}
		if _, ok := known[s.Field]; !ok {
			return nil, fmt.Errorf("filters[%d]: field %q is not in the header", i, s.Field)
		}
		if s.Regex == "" {
			return nil, fmt.Errorf("filters[%d]: missing regex", i)
		}
		mode, err := ParseMatchMode(s.Multi)
		if err != nil {
			return nil, fmt.Errorf("filters[%d]: %w", i, err)
		}
		re, err := regexp.Compile(s.Regex)
		if err != nil {
			return nil, fmt.Errorf("filters[%d]: %w", i, err)
		}
		ft[s.Field] = append(ft[s.Field], &Filter{Field: s.Field, Mode: mode, Pattern: re})
	}
	return ft, nil
}

// Pass reports whether every filter on field matches the scalar value.
// Fields without filters always pass.
func (ft FilterTable) Pass(field, value string) bool {
	for _, f := range ft[field] {
		if !f.Match(value) {
			return false
		}
	}
	return true
}

// PassMulti reports whether every filter on field matches the split values.
func (ft FilterTable) PassMulti(field string, values []string) bool {
	for _, f := range ft[field] {
		if !f.MatchAll(values) {
			return false
		}
	}
	return true
}
