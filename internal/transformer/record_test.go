package transformer

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type builderOpts struct {
	header   []string
	included []string
	ignored  []string
	multi    []string
	filters  []FilterSpec
	idColumn string
	prefix   string
}

func newBuilder(t *testing.T, o builderOpts) *RecordBuilder {
	t.Helper()
	ft, err := CompileFilters(o.filters, o.header)
	require.NoError(t, err)
	p, err := NewColumnPolicy(o.header, o.included, o.ignored, o.multi, ft)
	require.NoError(t, err)
	b, err := NewRecordBuilder(BuilderConfig{
		Header:              o.header,
		Policy:              p,
		Filters:             ft,
		IDColumn:            o.idColumn,
		IDPrefix:            o.prefix,
		SourceName:          "people.csv",
		MultiValueDelimiter: ';',
	})
	require.NoError(t, err)
	return b
}

func TestBuild_EndToEndExample(t *testing.T) {
	t.Parallel()

	header := []string{"id", "name", "tags"}

	anyB := newBuilder(t, builderOpts{
		header:   header,
		multi:    []string{"tags"},
		filters:  []FilterSpec{{Field: "tags", Multi: "ANY", Regex: "^red$"}},
		idColumn: "id",
		prefix:   "p-",
	})
	rec, rejected, err := anyB.Build([]string{"1", "Ann", "red;blue"}, 1)
	require.NoError(t, err)
	require.False(t, rejected)
	assert.Equal(t, "p-1", rec.ID)
	assert.Equal(t, map[string]any{"id": "1", "name": "Ann", "tags": []string{"red", "blue"}}, rec.Data)
	assert.Equal(t, map[string]any{"dc.identifier": "p-1"}, rec.Metadata)
	assert.Equal(t, StorageKey("people.csv", "p-", "1"), rec.OID)

	allB := newBuilder(t, builderOpts{
		header:   header,
		multi:    []string{"tags"},
		filters:  []FilterSpec{{Field: "tags", Multi: "ALL", Regex: "^red$"}},
		idColumn: "id",
		prefix:   "p-",
	})
	rec, rejected, err = allB.Build([]string{"1", "Ann", "red;blue"}, 1)
	require.NoError(t, err)
	assert.True(t, rejected)
	assert.Nil(t, rec)
}

func TestBuild_EmptyMultiValueFailsFilter(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{"ANY", "ALL"} {
		b := newBuilder(t, builderOpts{
			header:  []string{"id", "tags"},
			multi:   []string{"tags"},
			filters: []FilterSpec{{Field: "tags", Multi: mode, Regex: ".*"}},
		})
		_, rejected, err := b.Build([]string{"1", ""}, 1)
		require.NoError(t, err)
		assert.True(t, rejected, mode)
	}
}

func TestBuild_EmptyMultiValueWithoutFilter(t *testing.T) {
	t.Parallel()
	b := newBuilder(t, builderOpts{header: []string{"id", "tags"}, multi: []string{"tags"}})
	rec, _, err := b.Build([]string{"1", ""}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{}, rec.Data["tags"])
}

func TestBuild_RepeatedColumnLastWins(t *testing.T) {
	t.Parallel()
	b := newBuilder(t, builderOpts{header: []string{"id", "name", "name"}})
	rec, _, err := b.Build([]string{"1", "first", "second"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "second", rec.Data["name"])
}

func TestBuild_OrdinalIdentifier(t *testing.T) {
	t.Parallel()
	b := newBuilder(t, builderOpts{header: []string{"name"}, prefix: "x-"})

	rec, _, err := b.Build([]string{"Ann"}, 73)
	require.NoError(t, err)
	assert.Equal(t, "x-73", rec.ID)
	assert.Equal(t, StorageKey("people.csv", "x-", "73"), rec.OID)
}

func TestBuild_IDColumnMissingFromShortRow(t *testing.T) {
	t.Parallel()
	b := newBuilder(t, builderOpts{header: []string{"name", "id"}, idColumn: "id"})
	rec, _, err := b.Build([]string{"Ann"}, 5)
	require.NoError(t, err)
	assert.Equal(t, "5", rec.ID)
	assert.Equal(t, map[string]any{"name": "Ann"}, rec.Data)
}

func TestBuild_IDCapturedFromIgnoredColumn(t *testing.T) {
	t.Parallel()
	b := newBuilder(t, builderOpts{
		header:   []string{"id", "name"},
		ignored:  []string{"id"},
		idColumn: "id",
	})
	rec, _, err := b.Build([]string{"A7", "Ann"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "A7", rec.ID)
	assert.Equal(t, map[string]any{"name": "Ann"}, rec.Data)
}

func TestBuild_IDColumnIsRawUnsplit(t *testing.T) {
	t.Parallel()
	b := newBuilder(t, builderOpts{
		header:   []string{"id", "x"},
		multi:    []string{"id"},
		idColumn: "id",
	})
	rec, _, err := b.Build([]string{"a;b", "1"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "a;b", rec.ID)
	assert.Equal(t, []string{"a", "b"}, rec.Data["id"])
}

func TestBuild_FilterOnlyColumnNotEmitted(t *testing.T) {
	t.Parallel()
	b := newBuilder(t, builderOpts{
		header:   []string{"id", "status"},
		included: []string{"id"},
		filters:  []FilterSpec{{Field: "status", Regex: "^active$"}},
	})

	rec, rejected, err := b.Build([]string{"1", "active"}, 1)
	require.NoError(t, err)
	require.False(t, rejected)
	assert.Equal(t, map[string]any{"id": "1"}, rec.Data)

	_, rejected, err = b.Build([]string{"2", "inactive"}, 2)
	require.NoError(t, err)
	assert.True(t, rejected)
}

func TestBuild_ExtraCellsIgnored(t *testing.T) {
	t.Parallel()
	b := newBuilder(t, builderOpts{header: []string{"id", "name"}, idColumn: "id"})
	rec, _, err := b.Build([]string{"1", "Ann", "surplus", "more"}, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "1", "name": "Ann"}, rec.Data)
}

func TestBuild_MalformedMultiValue(t *testing.T) {
	t.Parallel()
	b := newBuilder(t, builderOpts{header: []string{"tags"}, multi: []string{"tags"}})
	_, _, err := b.Build([]string{`a;"b`}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "tags"`)
}

func TestNewRecordBuilder_NilPolicy(t *testing.T) {
	t.Parallel()
	_, err := NewRecordBuilder(BuilderConfig{Header: []string{"a"}})
	require.Error(t, err)
}

func TestStorageKey_Deterministic(t *testing.T) {
	t.Parallel()
	sum := md5.Sum([]byte("people.csvp-1"))
	want := hex.EncodeToString(sum[:])

	assert.Equal(t, want, StorageKey("people.csv", "p-", "1"))
	assert.Equal(t, StorageKey("people.csv", "p-", "1"), StorageKey("people.csv", "p-", "1"))
	assert.NotEqual(t, StorageKey("people.csv", "p-", "1"), StorageKey("other.csv", "p-", "1"))
	assert.Len(t, want, 32)
}
