package config

// This file adds a lightweight linter for Config values. It performs static
// checks over a decoded Config and returns a list of issues (errors and
// warnings) that callers can surface in a CLI or tests. Checks that need the
// CSV header (column names, filter fields) happen later, in harvest.Init.

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"csvharvest/internal/transformer"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that should be surfaced to users but
	// does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Config.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "harvester.csv.filters[1].regex"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether issues contains at least one SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// FilterSpec is the on-disk shape of one entry in harvester.csv.filters.
type FilterSpec = transformer.FilterSpec

// Validate performs static validation of a Config without mutating it.
//
//	issues := config.Validate(*cfg)
//	for _, iss := range issues {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func Validate(c Config) []Issue {
	var issues []Issue

	if strings.TrimSpace(c.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "job",
			Message:  "job is empty; metrics and logs will use the default job label",
		})
	}
	issues = append(issues, validateHarvester(c.Harvester)...)
	issues = append(issues, validateStorage(c.Storage)...)
	issues = append(issues, validateNotify(c.Notify)...)
	issues = append(issues, validateMetrics(c.Metrics)...)
	return issues
}

func validateHarvester(h Harvester) []Issue {
	var issues []Issue

	if h.Kind != "csv" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "harvester.kind",
			Message:  fmt.Sprintf("unknown harvester kind %q; only \"csv\" is supported", h.Kind),
		})
		return issues
	}

	o := h.CSV
	const base = "harvester.csv."

	if strings.TrimSpace(o.String("fileLocation", "")) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     base + "fileLocation",
			Message:  "fileLocation must not be empty",
		})
	}

	delim := o.String("delimiter", ",")
	multi := o.String("multiValueFieldDelimiter", ";")
	for key, v := range map[string]string{"delimiter": delim, "multiValueFieldDelimiter": multi} {
		if utf8.RuneCountInString(v) != 1 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     base + key,
				Message:  fmt.Sprintf("%s %q is not a single character; only the first character is used", key, v),
			})
		}
	}
	if delim != "" && multi != "" && []rune(delim)[0] == []rune(multi)[0] {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     base + "multiValueFieldDelimiter",
			Message:  "multiValueFieldDelimiter must differ from delimiter",
		})
	}

	if !o.Bool("headerRow", true) && len(o.StringSlice("headerList")) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     base + "headerList",
			Message:  "headerRow is false; headerList must name the columns",
		})
	}

	if bs := o.Int("batchSize", 50); bs <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     base + "batchSize",
			Message:  fmt.Sprintf("batchSize=%d; must be positive", bs),
		})
	}
	if o.Int("maxRows", -1) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     base + "maxRows",
			Message:  "maxRows=0 would harvest nothing; use a negative value for no limit",
		})
	}

	var filters []FilterSpec
	if err := o.Decode("filters", &filters); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     base + "filters",
			Message:  fmt.Sprintf("filters must be a list of {field, multi, regex}: %v", err),
		})
	}
	for i, f := range filters {
		p := fmt.Sprintf("%sfilters[%d]", base, i)
		if strings.TrimSpace(f.Field) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: p + ".field", Message: "filter field must not be empty"})
		}
		if f.Regex == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: p + ".regex", Message: "filter regex must not be empty"})
		} else if _, err := regexp.Compile(f.Regex); err != nil {
			issues = append(issues, Issue{Severity: SeverityError, Path: p + ".regex", Message: fmt.Sprintf("invalid regex: %v", err)})
		}
		if _, err := transformer.ParseMatchMode(f.Multi); err != nil {
			issues = append(issues, Issue{Severity: SeverityError, Path: p + ".multi", Message: err.Error()})
		}
	}

	switch c := strings.ToLower(o.String("compression", "auto")); c {
	case "auto", "none", "gzip", "zstd":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     base + "compression",
			Message:  fmt.Sprintf("unknown compression %q", c),
		})
	}

	if o.String("idColumn", "") == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     base + "idColumn",
			Message:  "no idColumn; identifiers fall back to row ordinals and change if rows are reordered",
		})
	}

	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
		return issues
	}

	switch s.Kind {
	case "memory", "ram":
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  "memory storage discards documents when the process exits",
		})
	case "sqlite":
		if strings.TrimSpace(s.DSN) == "" && strings.TrimSpace(s.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.dsn",
				Message:  "sqlite storage requires a dsn or a path",
			})
		}
	case "postgres", "mssql", "mysql":
		if strings.TrimSpace(s.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.dsn",
				Message:  fmt.Sprintf("%s storage requires a dsn", s.Kind),
			})
		}
	case "pebble":
		if strings.TrimSpace(s.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.path",
				Message:  "pebble storage requires a path",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}
	return issues
}

func validateNotify(n Notify) []Issue {
	var issues []Issue
	switch n.Kind {
	case "", "log":
	case "nats":
		if strings.TrimSpace(n.URL) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: "notify.url", Message: "nats notify requires a url"})
		}
	case "kafka":
		if len(n.Brokers) == 0 {
			issues = append(issues, Issue{Severity: SeverityError, Path: "notify.brokers", Message: "kafka notify requires at least one broker"})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "notify.kind",
			Message:  fmt.Sprintf("unknown notify kind %q; ensure a matching sink is registered", n.Kind),
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "prometheus", "pushgateway":
		if m.PushgatewayURL == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.pushgateway_url",
				Message:  "prometheus backend without pushgateway_url; metrics are only served on the status endpoint",
			})
		}
	case "datadog":
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q", m.Backend),
		})
	}
	return issues
}
