// Package config defines the JSON/TOML-serializable configuration model for
// the harvester. A configuration file names the job, the harvester options
// (the CSV source and how rows become documents), the document store, the
// optional notification sink and the metrics backend.
//
// Example (trimmed):
//
//	{
//	  "job": "people",
//	  "harvester": {
//	    "kind": "csv",
//	    "csv": {
//	      "fileLocation": "data/people.csv",
//	      "idColumn": "id",
//	      "multiValueFields": ["tags"],
//	      "filters": [{ "field": "tags", "multi": "ANY", "regex": "^red$" }]
//	    }
//	  },
//	  "storage": { "kind": "sqlite", "dsn": "file:harvest.db" }
//	}
//
// Harvester options are kept as a free-form Options bag because the CSV keys
// are camelCase names shared with existing harvest configurations; typed
// access with defaults happens in the harvest package.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the top-level object decoded from a harvest configuration file.
type Config struct {
	// Job labels log lines and metrics for this harvest.
	Job string `json:"job" toml:"job"`

	Harvester Harvester `json:"harvester" toml:"harvester"`
	Storage   Storage   `json:"storage" toml:"storage"`
	Notify    Notify    `json:"notify" toml:"notify"`
	Metrics   Metrics   `json:"metrics" toml:"metrics"`
}

// Harvester selects the harvester implementation and carries its options.
type Harvester struct {
	// Kind selects the harvester. Current value: "csv".
	Kind string `json:"kind" toml:"kind"`

	// CSV carries the options for the "csv" harvester, e.g. fileLocation,
	// idColumn, delimiter, multiValueFields, filters.
	CSV Options `json:"csv" toml:"csv"`
}

// Storage selects the document store the harvester writes into.
type Storage struct {
	// Kind selects the backend: memory, sqlite, postgres, mssql, mysql, pebble.
	Kind string `json:"kind" toml:"kind"`

	// DSN is the connection string for SQL backends.
	DSN string `json:"dsn" toml:"dsn"`

	// Path is the data directory for embedded KV backends (pebble).
	Path string `json:"path" toml:"path"`

	// Options is a free-form bag interpreted by the backend
	// (e.g. table_prefix, auto_create).
	Options Options `json:"options" toml:"options"`
}

// Notify configures where render-pending notifications are published after
// a document is written. An empty Kind disables notifications.
type Notify struct {
	Kind    string   `json:"kind" toml:"kind"`
	URL     string   `json:"url" toml:"url"`
	Brokers []string `json:"brokers" toml:"brokers"`
	Topic   string   `json:"topic" toml:"topic"`
}

// Metrics selects a metrics backend. CLI flags override these values.
type Metrics struct {
	Backend        string   `json:"backend" toml:"backend"`
	PushgatewayURL string   `json:"pushgateway_url" toml:"pushgateway_url"`
	DatadogAddr    string   `json:"datadog_addr" toml:"datadog_addr"`
	DatadogTags    []string `json:"datadog_tags" toml:"datadog_tags"`
}

// Load reads the configuration file at path. Files ending in .toml are decoded
// with TOML; everything else is decoded as JSON.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return DecodeTOML(string(b))
	}
	return DecodeJSON(b)
}

// DecodeJSON decodes a JSON configuration document.
func DecodeJSON(b []byte) (*Config, error) {
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decode json config: %w", err)
	}
	c.normalize()
	return &c, nil
}

// DecodeTOML decodes a TOML configuration document.
func DecodeTOML(s string) (*Config, error) {
	var c Config
	if _, err := toml.Decode(s, &c); err != nil {
		return nil, fmt.Errorf("decode toml config: %w", err)
	}
	c.normalize()
	return &c, nil
}

// normalize fills nil option bags so callers never nil-check them.
func (c *Config) normalize() {
	if c.Harvester.CSV == nil {
		c.Harvester.CSV = Options{}
	}
	if c.Storage.Options == nil {
		c.Storage.Options = Options{}
	}
	if strings.TrimSpace(c.Harvester.Kind) == "" {
		c.Harvester.Kind = "csv"
	}
}

// Options is a small helper to fetch typed values from arbitrary decoded maps
// without introducing a schema for every backend. It performs only minimal
// type coercion and returns the provided default when a key is absent or of an
// unexpected type.
type Options map[string]any

// Has reports whether key is present (even with a null value).
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers are decoded as
// float64 and TOML integers as int64, so both are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. Used for single-character settings such as delimiters.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringSlice returns a []string for key when the value is an array of strings
// (or an array of interface values containing strings). Returns nil when the
// key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any returns the raw value for key. Nested blocks are returned as decoded
// (map[string]any, []any or []map[string]any for TOML arrays of tables).
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// Decode re-marshals the raw value at key into out. It is used for nested
// structures such as the filter list. A missing key leaves out untouched.
func (o Options) Decode(key string, out any) error {
	raw, ok := o[key]
	if !ok || raw == nil {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler so that a missing or null options
// object decodes to a non-nil, empty Options map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
