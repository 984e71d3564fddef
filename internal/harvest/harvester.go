// Package harvest drives a CSV source into a document store in batches.
//
// A Harvester is used by a host scheduler through four calls:
//
//	h := harvest.New(settings, store)
//	if err := h.Init(ctx); err != nil { ... }
//	defer h.Shutdown()
//	for h.HasMoreObjects() {
//	    ids, err := h.GetObjectIDList(ctx)
//	    ...
//	}
//
// Run wraps that loop. A Harvester is single-threaded: only Stats may be
// called from other goroutines.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"csvharvest/internal/datasource"
	"csvharvest/internal/metrics"
	"csvharvest/internal/notify"
	"csvharvest/internal/parser/csv"
	"csvharvest/internal/storage"
	"csvharvest/internal/transformer"
)

var (
	// ErrNotInitialized is returned when a batch is requested before a
	// successful Init.
	ErrNotInitialized = errors.New("harvest: harvester not initialized")
	// ErrShutdown is returned when a batch is requested after Shutdown.
	ErrShutdown = errors.New("harvest: harvester shut down")
)

// Stats is a snapshot of a harvest run.
type Stats struct {
	RunID  string `json:"run_id"`
	Job    string `json:"job,omitempty"`
	Source string `json:"source,omitempty"`

	Rows      int64 `json:"rows"`      // rows read from the source
	Rejected  int64 `json:"rejected"`  // rows dropped by a filter
	Stored    int64 `json:"stored"`    // records merged into the store
	Created   int64 `json:"created"`   // records that created a new object
	Unchanged int64 `json:"unchanged"` // records whose payload did not change
	Batches   int64 `json:"batches"`

	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Done     bool      `json:"done"`
	Err      string    `json:"error,omitempty"`
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithNotifier publishes a render notification for every stored record.
func WithNotifier(s notify.Sink) Option { return func(h *Harvester) { h.sink = s } }

// WithLogger replaces the global logger as the parent of the run logger.
func WithLogger(l zerolog.Logger) Option { return func(h *Harvester) { h.parent = l } }

// WithSource reads from src instead of resolving Settings.FileLocation. The
// file location is still used as the source name when src has none.
func WithSource(src datasource.Source) Option { return func(h *Harvester) { h.src = src } }

// Harvester turns the rows of one CSV source into stored documents.
type Harvester struct {
	settings Settings
	store    storage.Store
	sink     notify.Sink
	src      datasource.Source
	parent   zerolog.Logger
	log      zerolog.Logger

	rc      io.ReadCloser
	reader  *csv.Reader
	builder *transformer.RecordBuilder
	merger  *storage.Merger
	cursor  Cursor

	initialized bool
	closed      bool

	mu    sync.Mutex
	stats Stats
}

// New returns a Harvester writing into store. Nothing is opened until Init.
func New(settings Settings, store storage.Store, opts ...Option) *Harvester {
	h := &Harvester{
		settings: settings,
		store:    store,
		parent:   log.Logger,
	}
	for _, o := range opts {
		o(h)
	}
	h.stats.RunID = uuid.NewString()
	h.stats.Job = settings.Job
	h.log = h.parent.With().Str("run_id", h.stats.RunID).Str("job", settings.Job).Logger()
	return h
}

// Init validates the settings, opens the source, resolves the header and
// compiles filters and column policy. It fails on the first invalid setting
// and leaves nothing open on failure.
func (h *Harvester) Init(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordStep(h.settings.Job, "init", err, time.Since(start))
		if err != nil {
			h.mu.Lock()
			h.stats.Err = err.Error()
			h.mu.Unlock()
		}
	}()

	if h.closed {
		return ErrShutdown
	}
	if h.initialized {
		return errors.New("harvest: already initialized")
	}
	if h.store == nil {
		return errors.New("harvest: nil store")
	}
	if err := h.settings.Validate(); err != nil {
		return fmt.Errorf("invalid harvester settings: %w", err)
	}

	src := h.src
	if src == nil {
		src = datasource.New(h.settings.FileLocation, h.settings.sourceOptions())
	}
	name := datasource.Name(src)
	if name == "" {
		name = path.Base(h.settings.FileLocation)
	}

	rc, err := datasource.Open(ctx, src, name, h.settings.sourceOptions())
	if err != nil {
		return fmt.Errorf("open source %s: %w", h.settings.FileLocation, err)
	}
	defer func() {
		if err != nil {
			_ = rc.Close()
		}
	}()

	reader, err := csv.NewReader(rc, h.settings.readerOptions())
	if err != nil {
		return fmt.Errorf("read header of %s: %w", name, err)
	}
	header := reader.Header()

	if h.settings.IDColumn != "" && !contains(header, h.settings.IDColumn) {
		return fmt.Errorf("idColumn %q is not in the header", h.settings.IDColumn)
	}
	filters, err := transformer.CompileFilters(h.settings.Filters, header)
	if err != nil {
		return err
	}
	policy, err := transformer.NewColumnPolicy(header,
		h.settings.IncludedFields, h.settings.IgnoredFields, h.settings.MultiValueFields, filters)
	if err != nil {
		return err
	}
	builder, err := transformer.NewRecordBuilder(transformer.BuilderConfig{
		Header:              header,
		Policy:              policy,
		Filters:             filters,
		IDColumn:            h.settings.IDColumn,
		IDPrefix:            h.settings.IDPrefix,
		SourceName:          name,
		MultiValueDelimiter: h.settings.MultiValueDelimiter,
		LazyQuotes:          h.settings.LazyQuotes,
	})
	if err != nil {
		return err
	}

	mopts := []storage.MergerOption{storage.WithJob(h.settings.Job), storage.WithLogger(h.log)}
	if h.sink != nil {
		mopts = append(mopts, storage.WithNotifier(h.sink))
	}

	h.rc = rc
	h.reader = reader
	h.builder = builder
	h.merger = storage.NewMerger(h.store, h.settings.PayloadID, mopts...)
	h.cursor = newCursor(h.settings.MaxRows)
	h.initialized = true

	h.mu.Lock()
	h.stats.Source = name
	h.stats.Started = start
	h.mu.Unlock()

	h.log.Info().
		Str("source", name).
		Int("columns", len(header)).
		Int("filters", len(h.settings.Filters)).
		Int("batch_size", h.settings.BatchSize).
		Int("max_rows", h.settings.MaxRows).
		Msg("harvester initialized")
	return nil
}

// HasMoreObjects reports whether another GetObjectIDList call may return
// records. It is false before Init, after Shutdown, and once the source has
// returned EOF or the row cap was reached.
func (h *Harvester) HasMoreObjects() bool {
	return h.initialized && !h.closed && !h.cursor.Exhausted()
}

// GetObjectIDList reads up to BatchSize rows, merges every accepted record
// into the store and returns the distinct storage keys written, in the order
// they were first stored. Rejected rows count toward the batch but
// contribute no key. Any tokenizer or store error aborts the batch.
func (h *Harvester) GetObjectIDList(ctx context.Context) (ids []string, err error) {
	switch {
	case h.closed:
		return nil, ErrShutdown
	case !h.initialized:
		return nil, ErrNotInitialized
	}

	start := time.Now()
	var b batchCounts
	defer func() {
		metrics.RecordStep(h.settings.Job, "batch", err, time.Since(start))
		h.record(b, err)
	}()

	ids, err = h.nextBatch(ctx, &b)
	if err != nil {
		return nil, err
	}
	h.log.Debug().
		Int("ids", len(ids)).
		Int64("rows", b.rows).
		Int64("rejected", b.rejected).
		Int64("row_index", h.cursor.Row()).
		Bool("more", h.HasMoreObjects()).
		Msg("batch harvested")
	return ids, nil
}

type batchCounts struct {
	rows, rejected, stored, created, unchanged int64
}

func (h *Harvester) nextBatch(ctx context.Context, b *batchCounts) ([]string, error) {
	var (
		ids  []string
		seen = make(map[string]struct{})
	)
	for b.rows < int64(h.settings.BatchSize) {
		if h.cursor.Exhausted() {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := h.reader.Next()
		if errors.Is(err, io.EOF) {
			h.cursor.finish()
			break
		}
		if err != nil {
			return nil, err
		}
		ordinal := h.cursor.advance()
		b.rows++

		rec, rejected, err := h.builder.Build(row, ordinal)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", ordinal, err)
		}
		if rejected {
			b.rejected++
			h.log.Debug().Int64("row", ordinal).Msg("row rejected by filter")
			continue
		}

		res, err := h.merger.Merge(ctx, rec.OID, storage.MergeInput{
			RecordID: rec.ID,
			IDPrefix: h.settings.IDPrefix,
			Data:     rec.Data,
			Metadata: rec.Metadata,
		})
		if err != nil {
			return nil, fmt.Errorf("store record %s (row %d): %w", rec.ID, ordinal, err)
		}
		b.stored++
		if res.Created {
			b.created++
		}
		if !res.Changed {
			b.unchanged++
		}
		if _, dup := seen[rec.OID]; !dup {
			seen[rec.OID] = struct{}{}
			ids = append(ids, rec.OID)
		}
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// record folds one batch into Stats and metrics. Rows read before a failure
// are still counted.
func (h *Harvester) record(b batchCounts, err error) {
	job := h.settings.Job
	metrics.RecordRow(job, metrics.KindRead, b.rows)
	metrics.RecordRow(job, metrics.KindRejected, b.rejected)
	metrics.RecordRow(job, metrics.KindStored, b.stored)
	metrics.RecordRow(job, metrics.KindCreated, b.created)
	metrics.RecordRow(job, metrics.KindUnchanged, b.unchanged)
	if err == nil {
		metrics.RecordBatches(job, 1)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats.Rows += b.rows
	h.stats.Rejected += b.rejected
	h.stats.Stored += b.stored
	h.stats.Created += b.created
	h.stats.Unchanged += b.unchanged
	if err == nil {
		h.stats.Batches++
	} else {
		h.stats.Err = err.Error()
	}
}

// Shutdown releases the source. Close failures are logged and swallowed, so
// the result is always nil. Calling it more than once is harmless.
func (h *Harvester) Shutdown() error {
	if h.closed {
		return nil
	}
	h.closed = true

	start := time.Now()
	if h.rc != nil {
		if err := h.rc.Close(); err != nil {
			h.log.Warn().Err(err).Msg("failed to close harvest source")
		}
		h.rc = nil
	}
	metrics.RecordStep(h.settings.Job, "shutdown", nil, time.Since(start))

	h.mu.Lock()
	h.stats.Done = true
	h.stats.Finished = time.Now()
	st := h.stats
	h.mu.Unlock()

	if h.initialized {
		h.log.Info().
			Int64("rows", st.Rows).
			Int64("stored", st.Stored).
			Int64("rejected", st.Rejected).
			Int64("created", st.Created).
			Int64("unchanged", st.Unchanged).
			Int64("batches", st.Batches).
			Msg("harvester shut down")
	}
	return nil
}

// Stats returns a snapshot of the run counters. Safe for concurrent use.
func (h *Harvester) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Run initializes h, harvests until the source is exhausted and shuts down
// on every exit path. The returned Stats are taken after shutdown.
func Run(ctx context.Context, h *Harvester) (Stats, error) {
	err := drain(ctx, h)
	_ = h.Shutdown()
	return h.Stats(), err
}

func drain(ctx context.Context, h *Harvester) error {
	if err := h.Init(ctx); err != nil {
		return err
	}
	for h.HasMoreObjects() {
		if _, err := h.GetObjectIDList(ctx); err != nil {
			return err
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
