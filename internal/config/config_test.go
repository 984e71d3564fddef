package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "job": "people",
  "harvester": {
    "kind": "csv",
    "csv": {
      "fileLocation": "testdata/people.csv",
      "idColumn": "id",
      "recordIDPrefix": "p-",
      "delimiter": "|",
      "multiValueFields": ["tags"],
      "batchSize": 25,
      "filters": [{ "field": "tags", "multi": "ALL", "regex": "^r" }]
    }
  },
  "storage": { "kind": "sqlite", "dsn": "file:h.db", "options": { "table_prefix": "h_" } },
  "notify": { "kind": "nats", "url": "nats://127.0.0.1:4222", "topic": "render" },
  "metrics": { "backend": "prometheus", "pushgateway_url": "http://pgw:9091" }
}`

const sampleTOML = `
job = "people"

[harvester]
kind = "csv"

[harvester.csv]
fileLocation = "testdata/people.csv"
idColumn = "id"
batchSize = 25
multiValueFields = ["tags"]

[[harvester.csv.filters]]
field = "tags"
multi = "ALL"
regex = "^r"

[storage]
kind = "pebble"
path = "/var/lib/harvest"
`

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	c, err := DecodeJSON([]byte(sampleJSON))
	require.NoError(t, err)

	assert.Equal(t, "people", c.Job)
	assert.Equal(t, "csv", c.Harvester.Kind)
	assert.Equal(t, "testdata/people.csv", c.Harvester.CSV.String("fileLocation", ""))
	assert.Equal(t, '|', c.Harvester.CSV.Rune("delimiter", ','))
	assert.Equal(t, ';', c.Harvester.CSV.Rune("multiValueFieldDelimiter", ';'))
	assert.Equal(t, 25, c.Harvester.CSV.Int("batchSize", 50))
	assert.Equal(t, []string{"tags"}, c.Harvester.CSV.StringSlice("multiValueFields"))
	assert.Equal(t, "h_", c.Storage.Options.String("table_prefix", ""))
	assert.Equal(t, "nats", c.Notify.Kind)
	assert.Equal(t, "http://pgw:9091", c.Metrics.PushgatewayURL)

	var fs []FilterSpec
	require.NoError(t, c.Harvester.CSV.Decode("filters", &fs))
	assert.Equal(t, []FilterSpec{{Field: "tags", Multi: "ALL", Regex: "^r"}}, fs)
}

func TestDecodeTOML(t *testing.T) {
	t.Parallel()

	c, err := DecodeTOML(sampleTOML)
	require.NoError(t, err)

	assert.Equal(t, "pebble", c.Storage.Kind)
	assert.Equal(t, "/var/lib/harvest", c.Storage.Path)
	// TOML integers decode as int64.
	assert.Equal(t, 25, c.Harvester.CSV.Int("batchSize", 50))
	assert.Equal(t, []string{"tags"}, c.Harvester.CSV.StringSlice("multiValueFields"))
	assert.NotNil(t, c.Storage.Options)

	var fs []FilterSpec
	require.NoError(t, c.Harvester.CSV.Decode("filters", &fs))
	require.Len(t, fs, 1)
	assert.Equal(t, "tags", fs[0].Field)
}

func TestLoad_ByExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	jp := filepath.Join(dir, "h.json")
	tp := filepath.Join(dir, "h.toml")
	require.NoError(t, os.WriteFile(jp, []byte(sampleJSON), 0o644))
	require.NoError(t, os.WriteFile(tp, []byte(sampleTOML), 0o644))

	jc, err := Load(jp)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", jc.Storage.Kind)

	tc, err := Load(tp)
	require.NoError(t, err)
	assert.Equal(t, "pebble", tc.Storage.Kind)

	_, err = Load(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestDecode_DefaultsKindAndOptions(t *testing.T) {
	t.Parallel()

	c, err := DecodeJSON([]byte(`{"harvester": {}, "storage": {"kind": "memory"}}`))
	require.NoError(t, err)
	assert.Equal(t, "csv", c.Harvester.Kind)
	assert.NotNil(t, c.Harvester.CSV)
	assert.NotNil(t, c.Storage.Options)
}

func TestOptions_Getters(t *testing.T) {
	t.Parallel()

	o := Options{
		"s":    "x",
		"b":    true,
		"f":    float64(3),
		"i64":  int64(4),
		"r":    "ß",
		"list": []any{"a", 1, "b"},
		"null": nil,
	}

	assert.Equal(t, "x", o.String("s", "d"))
	assert.Equal(t, "d", o.String("b", "d"))
	assert.True(t, o.Bool("b", false))
	assert.True(t, o.Bool("missing", true))
	assert.Equal(t, 3, o.Int("f", 0))
	assert.Equal(t, 4, o.Int("i64", 0))
	assert.Equal(t, 7, o.Int("s", 7))
	assert.Equal(t, 'ß', o.Rune("r", ','))
	assert.Equal(t, ',', o.Rune("missing", ','))
	assert.Equal(t, []string{"a", "b"}, o.StringSlice("list"))
	assert.Nil(t, o.StringSlice("s"))
	assert.True(t, o.Has("null"))
	assert.Nil(t, o.Any("null"))
	assert.False(t, o.Has("nope"))
}
