package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func validConfig() Config {
	return Config{
		Job: "people",
		Harvester: Harvester{
			Kind: "csv",
			CSV: Options{
				"fileLocation": "people.csv",
				"idColumn":     "id",
			},
		},
		Storage: Storage{Kind: "sqlite", DSN: "file:h.db"},
	}
}

func TestValidate_ValidMinimal(t *testing.T) {
	t.Parallel()
	issues := Validate(validConfig())
	assert.Empty(t, issues)
	assert.False(t, HasErrors(issues))
}

func TestValidate_Findings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *Config)
		sev    IssueSeverity
		path   string
		substr string
	}{
		{
			name:   "missing file",
			mutate: func(c *Config) { delete(c.Harvester.CSV, "fileLocation") },
			sev:    SeverityError, path: "harvester.csv.fileLocation", substr: "must not be empty",
		},
		{
			name:   "equal delimiters",
			mutate: func(c *Config) { c.Harvester.CSV["multiValueFieldDelimiter"] = "," },
			sev:    SeverityError, path: "harvester.csv.multiValueFieldDelimiter", substr: "must differ",
		},
		{
			name:   "no header list",
			mutate: func(c *Config) { c.Harvester.CSV["headerRow"] = false },
			sev:    SeverityError, path: "harvester.csv.headerList", substr: "headerList",
		},
		{
			name:   "zero batch",
			mutate: func(c *Config) { c.Harvester.CSV["batchSize"] = float64(0) },
			sev:    SeverityError, path: "harvester.csv.batchSize", substr: "positive",
		},
		{
			name:   "zero max rows",
			mutate: func(c *Config) { c.Harvester.CSV["maxRows"] = float64(0) },
			sev:    SeverityError, path: "harvester.csv.maxRows", substr: "maxRows=0",
		},
		{
			name: "bad regex",
			mutate: func(c *Config) {
				c.Harvester.CSV["filters"] = []any{map[string]any{"field": "a", "regex": "("}}
			},
			sev: SeverityError, path: "harvester.csv.filters[0].regex", substr: "invalid regex",
		},
		{
			name: "bad mode",
			mutate: func(c *Config) {
				c.Harvester.CSV["filters"] = []any{map[string]any{"field": "a", "regex": "x", "multi": "SOME"}}
			},
			sev: SeverityError, path: "harvester.csv.filters[0].multi", substr: "SOME",
		},
		{
			name:   "no id column",
			mutate: func(c *Config) { delete(c.Harvester.CSV, "idColumn") },
			sev:    SeverityWarning, path: "harvester.csv.idColumn", substr: "ordinals",
		},
		{
			name:   "unknown harvester",
			mutate: func(c *Config) { c.Harvester.Kind = "xml" },
			sev:    SeverityError, path: "harvester.kind", substr: "xml",
		},
		{
			name:   "sql storage without dsn",
			mutate: func(c *Config) { c.Storage.DSN = "" },
			sev:    SeverityError, path: "storage.dsn", substr: "dsn",
		},
		{
			name:   "postgres without dsn",
			mutate: func(c *Config) { c.Storage = Storage{Kind: "postgres", Path: "/ignored"} },
			sev:    SeverityError, path: "storage.dsn", substr: "postgres storage requires a dsn",
		},
		{
			name:   "pebble without path",
			mutate: func(c *Config) { c.Storage = Storage{Kind: "pebble"} },
			sev:    SeverityError, path: "storage.path", substr: "path",
		},
		{
			name:   "kafka without brokers",
			mutate: func(c *Config) { c.Notify = Notify{Kind: "kafka", Topic: "t"} },
			sev:    SeverityError, path: "notify.brokers", substr: "broker",
		},
		{
			name:   "unknown metrics backend",
			mutate: func(c *Config) { c.Metrics.Backend = "graphite" },
			sev:    SeverityWarning, path: "metrics.backend", substr: "graphite",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validConfig()
			tt.mutate(&c)
			issues := Validate(c)
			assert.True(t, hasIssue(issues, tt.sev, tt.path, tt.substr), "issues: %+v", issues)
		})
	}
}

func TestValidate_AcceptedVariants(t *testing.T) {
	t.Parallel()

	c := validConfig()
	c.Storage = Storage{Kind: "sqlite", Path: "/var/lib/harvest.db"}
	c.Notify = Notify{Kind: "log"}
	c.Metrics = Metrics{Backend: "pushgateway", PushgatewayURL: "http://pgw:9091"}
	assert.False(t, HasErrors(Validate(c)))
	for _, iss := range Validate(c) {
		assert.NotEqual(t, "notify.kind", iss.Path)
		assert.NotEqual(t, "metrics.backend", iss.Path)
	}
}

func TestIssue_Error(t *testing.T) {
	t.Parallel()
	iss := Issue{Severity: SeverityError, Path: "storage.kind", Message: "boom"}
	assert.Equal(t, "error at storage.kind: boom", iss.Error())
}
