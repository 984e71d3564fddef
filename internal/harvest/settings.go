package harvest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"csvharvest/internal/config"
	"csvharvest/internal/datasource"
	"csvharvest/internal/datasource/httpds"
	"csvharvest/internal/parser/csv"
	"csvharvest/internal/storage"
	"csvharvest/internal/transformer"
)

// Defaults for unset harvester options.
const (
	DefaultDelimiter           = ','
	DefaultMultiValueDelimiter = ';'
	DefaultBatchSize           = 50
	Unbounded                  = -1
)

// Settings is the resolved configuration of one CSV harvest.
type Settings struct {
	Job string

	// FileLocation is a local path or an http(s) URL.
	FileLocation string

	IDColumn string
	IDPrefix string

	Delimiter           rune
	MultiValueDelimiter rune

	HeaderRow  bool
	HeaderList []string

	IncludedFields   []string
	IgnoredFields    []string
	MultiValueFields []string

	Filters []transformer.FilterSpec

	PayloadID string
	BatchSize int
	// MaxRows caps the rows read over the whole stream; negative means no cap.
	MaxRows int

	Encoding         string
	NormalizeUnicode bool
	Compression      string
	LazyQuotes       bool
	TrimSpace        bool

	HTTP httpds.Config
}

// DefaultSettings returns Settings with every default applied and no source.
func DefaultSettings() Settings {
	return Settings{
		Delimiter:           DefaultDelimiter,
		MultiValueDelimiter: DefaultMultiValueDelimiter,
		HeaderRow:           true,
		PayloadID:           storage.DefaultPayloadID,
		BatchSize:           DefaultBatchSize,
		MaxRows:             Unbounded,
		Compression:         "auto",
	}
}

// SettingsFrom reads the harvester.csv option bag. Only decoding problems
// are reported here; semantic checks happen in Validate.
func SettingsFrom(job string, o config.Options) (Settings, error) {
	s := DefaultSettings()
	s.Job = job
	s.FileLocation = strings.TrimSpace(o.String("fileLocation", ""))
	s.IDColumn = o.String("idColumn", "")
	s.IDPrefix = o.String("recordIDPrefix", "")
	s.Delimiter = o.Rune("delimiter", DefaultDelimiter)
	s.MultiValueDelimiter = o.Rune("multiValueFieldDelimiter", DefaultMultiValueDelimiter)
	s.HeaderRow = o.Bool("headerRow", true)
	s.HeaderList = o.StringSlice("headerList")
	s.IncludedFields = o.StringSlice("includedFields")
	s.IgnoredFields = o.StringSlice("ignoreFields")
	if s.IgnoredFields == nil {
		s.IgnoredFields = o.StringSlice("ignoredFields")
	}
	s.MultiValueFields = o.StringSlice("multiValueFields")
	s.PayloadID = o.String("payloadId", storage.DefaultPayloadID)
	s.BatchSize = o.Int("batchSize", DefaultBatchSize)
	s.MaxRows = o.Int("maxRows", Unbounded)
	s.Encoding = o.String("encoding", "")
	s.NormalizeUnicode = o.Bool("normalizeUnicode", false)
	s.Compression = o.String("compression", "auto")
	s.LazyQuotes = o.Bool("lazyQuotes", false)
	s.TrimSpace = o.Bool("trimSpace", false)

	if err := o.Decode("filters", &s.Filters); err != nil {
		return s, fmt.Errorf("harvester.csv.filters: %w", err)
	}

	s.HTTP.MaxRetries = o.Int("httpRetries", 0)
	s.HTTP.InsecureSkipVerify = o.Bool("httpInsecureSkipVerify", false)
	if v := o.String("httpTimeout", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return s, fmt.Errorf("harvester.csv.httpTimeout: %w", err)
		}
		s.HTTP.Timeout = d
	}
	return s, nil
}

// Validate checks the settings that do not need the source. Every problem
// found is reported.
func (s Settings) Validate() error {
	var errs []error
	if s.FileLocation == "" {
		errs = append(errs, errors.New("fileLocation must not be empty"))
	}
	if err := csv.ValidDelimiter(s.Delimiter); err != nil {
		errs = append(errs, fmt.Errorf("delimiter: %w", err))
	}
	if err := csv.ValidDelimiter(s.MultiValueDelimiter); err != nil {
		errs = append(errs, fmt.Errorf("multiValueFieldDelimiter: %w", err))
	}
	if s.Delimiter == s.MultiValueDelimiter {
		errs = append(errs, fmt.Errorf("delimiter and multiValueFieldDelimiter are both %q", s.Delimiter))
	}
	if !s.HeaderRow && len(s.HeaderList) == 0 {
		errs = append(errs, errors.New("headerRow is false but headerList is empty"))
	}
	if s.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batchSize=%d must be positive", s.BatchSize))
	}
	if s.MaxRows == 0 {
		errs = append(errs, errors.New("maxRows=0; use a negative value for no limit"))
	}
	if strings.TrimSpace(s.PayloadID) == "" {
		errs = append(errs, errors.New("payloadId must not be empty"))
	}
	if _, err := datasource.Compression(s.Compression, s.FileLocation); err != nil {
		errs = append(errs, err)
	}
	if err := datasource.CheckEncoding(s.Encoding); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s Settings) sourceOptions() datasource.Options {
	return datasource.Options{
		Compression:      s.Compression,
		Encoding:         s.Encoding,
		NormalizeUnicode: s.NormalizeUnicode,
		HTTP:             s.HTTP,
	}
}

func (s Settings) readerOptions() csv.Options {
	return csv.Options{
		Comma:       s.Delimiter,
		NoHeaderRow: !s.HeaderRow,
		Header:      s.HeaderList,
		LazyQuotes:  s.LazyQuotes,
		TrimSpace:   s.TrimSpace,
	}
}
