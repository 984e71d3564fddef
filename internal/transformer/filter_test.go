package transformer

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustFilter(t *testing.T, field string, mode MatchMode, pattern string) *Filter {
	t.Helper()
	return &Filter{Field: field, Mode: mode, Pattern: regexp.MustCompile(pattern)}
}

func TestFilter_MatchIsUnanchored(t *testing.T) {
	t.Parallel()
	f := mustFilter(t, "name", MatchAny, "nn")
	assert.True(t, f.Match("Ann"))
	assert.False(t, f.Match("Bob"))

	anchored := mustFilter(t, "name", MatchAny, "^nn$")
	assert.False(t, anchored.Match("Ann"))
}

func TestFilter_MatchAll(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mode   MatchMode
		values []string
		want   bool
	}{
		{"any empty", MatchAny, []string{}, false},
		{"all empty", MatchAll, []string{}, false},
		{"any nil", MatchAny, nil, false},
		{"any one hit", MatchAny, []string{"blue", "red"}, true},
		{"any no hit", MatchAny, []string{"blue", "green"}, false},
		{"all every hit", MatchAll, []string{"red", "ruby"}, true},
		{"all one miss", MatchAll, []string{"red", "blue"}, false},
		{"all single hit", MatchAll, []string{"rose"}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := mustFilter(t, "tags", tt.mode, "^r")
			assert.Equal(t, tt.want, f.MatchAll(tt.values))
		})
	}
}

func TestParseMatchMode(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]MatchMode{"": MatchAny, "any": MatchAny, "ANY": MatchAny, "All": MatchAll} {
		got, err := ParseMatchMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMatchMode("SOME")
	require.Error(t, err)
	assert.Equal(t, "ALL", MatchAll.String())
	assert.Equal(t, "ANY", MatchAny.String())
}

func TestCompileFilters(t *testing.T) {
	t.Parallel()
	header := []string{"id", "tags"}

	ft, err := CompileFilters([]FilterSpec{
		{Field: "tags", Multi: "all", Regex: "^r"},
		{Field: "tags", Regex: "e"},
		{Field: "id", Regex: `^\d+$`},
	}, header)
	require.NoError(t, err)
	require.Len(t, ft["tags"], 2)
	assert.Equal(t, MatchAll, ft["tags"][0].Mode)
	assert.Equal(t, MatchAny, ft["tags"][1].Mode)

	// Logical AND across filters on the same field.
	assert.True(t, ft.PassMulti("tags", []string{"red", "rose"}))
	assert.False(t, ft.PassMulti("tags", []string{"rdx"}))
	assert.True(t, ft.Pass("id", "42"))
	assert.False(t, ft.Pass("id", "4a"))
	assert.True(t, ft.Pass("unfiltered", "anything"))
}

func TestCompileFilters_Errors(t *testing.T) {
	t.Parallel()
	header := []string{"id", "tags"}

	tests := []struct {
		name string
		spec FilterSpec
		msg  string
	}{
		{"missing field", FilterSpec{Regex: "x"}, "missing field"},
		{"unknown field", FilterSpec{Field: "color", Regex: "x"}, "not in the header"},
		{"missing regex", FilterSpec{Field: "tags"}, "missing regex"},
		{"bad mode", FilterSpec{Field: "tags", Multi: "NONE", Regex: "x"}, "match mode"},
		{"bad regex", FilterSpec{Field: "tags", Regex: "("}, "filters[0]"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := CompileFilters([]FilterSpec{tt.spec}, header)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
