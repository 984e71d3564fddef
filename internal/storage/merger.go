package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/xxh3"

	"csvharvest/internal/notify"
)

// Keys of the stored record document and object properties.
const (
	FieldData          = "data"
	FieldMetadata      = "metadata"
	FieldRecordPrefix  = "recordIDPrefix"
	PropRenderPending  = "render-pending"
	DefaultPayloadID   = "metadata.json"
	renderPendingValue = "true"
)

// MergeInput is the freshly built part of a record document.
type MergeInput struct {
	RecordID string
	IDPrefix string
	Data     map[string]any
	Metadata map[string]any
}

// MergeResult reports what a merge did.
type MergeResult struct {
	// Created is true when the object did not exist before.
	Created bool
	// Changed is false when the rewritten payload is byte-identical to the
	// previous one.
	Changed bool
}

// Merger merge-upserts record documents into a Store.
type Merger struct {
	store     Store
	payloadID string
	sink      notify.Sink
	job       string
	log       zerolog.Logger
	now       func() time.Time
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithNotifier publishes a notify.Message after every successful write.
func WithNotifier(s notify.Sink) MergerOption { return func(m *Merger) { m.sink = s } }

// WithJob labels published messages.
func WithJob(job string) MergerOption { return func(m *Merger) { m.job = job } }

// WithLogger replaces the global logger.
func WithLogger(l zerolog.Logger) MergerOption { return func(m *Merger) { m.log = l } }

// NewMerger returns a Merger writing payload payloadID (DefaultPayloadID when
// empty) of each object.
func NewMerger(store Store, payloadID string, opts ...MergerOption) *Merger {
	if payloadID == "" {
		payloadID = DefaultPayloadID
	}
	m := &Merger{store: store, payloadID: payloadID, log: log.Logger, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// PayloadID returns the payload the merger writes.
func (m *Merger) PayloadID() string { return m.payloadID }

// Merge overlays in onto the document stored at oid, creating the object when
// needed. Keys of the existing data and metadata objects that in does not set
// are kept, as are unrelated top-level keys. The document is always
// rewritten and the object flagged render-pending; a failure to set the flag
// or to publish the notification is logged and does not fail the merge.
func (m *Merger) Merge(ctx context.Context, oid string, in MergeInput) (MergeResult, error) {
	var res MergeResult

	if _, err := m.store.Get(ctx, oid); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return res, fmt.Errorf("get object %s: %w", oid, err)
		}
		if _, err := m.store.Create(ctx, oid); err != nil {
			return res, fmt.Errorf("create object %s: %w", oid, err)
		}
		res.Created = true
	}

	doc := map[string]any{}
	var prev []byte
	p, err := m.store.ReadPayload(ctx, oid, m.payloadID)
	switch {
	case err == nil:
		prev = p.Data
		if len(bytes.TrimSpace(prev)) > 0 {
			dec := json.NewDecoder(bytes.NewReader(prev))
			dec.UseNumber()
			if err := dec.Decode(&doc); err != nil {
				return res, fmt.Errorf("parse payload %s/%s: %w", oid, m.payloadID, err)
			}
			if doc == nil {
				doc = map[string]any{}
			}
		}
	case errors.Is(err, ErrNotFound):
	default:
		return res, fmt.Errorf("read payload %s/%s: %w", oid, m.payloadID, err)
	}

	doc[FieldRecordPrefix] = in.IDPrefix
	doc[FieldData] = overlay(doc[FieldData], in.Data)
	doc[FieldMetadata] = overlay(doc[FieldMetadata], in.Metadata)

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return res, fmt.Errorf("encode payload %s: %w", oid, err)
	}
	res.Changed = prev == nil || xxh3.Hash(prev) != xxh3.Hash(out)

	if err := m.store.WritePayload(ctx, oid, m.payloadID, &Payload{
		ID:          m.payloadID,
		ContentType: ContentTypeJSON,
		Data:        out,
	}); err != nil {
		return res, fmt.Errorf("write payload %s/%s: %w", oid, m.payloadID, err)
	}

	if err := m.store.SetProperty(ctx, oid, PropRenderPending, renderPendingValue); err != nil {
		m.log.Error().Err(err).Str("oid", oid).Msg("failed to flag object render-pending")
	}
	if m.sink != nil {
		msg := notify.Message{OID: oid, RecordID: in.RecordID, PayloadID: m.payloadID, Job: m.job, Time: m.now().UTC()}
		if err := m.sink.Publish(ctx, msg); err != nil {
			m.log.Warn().Err(err).Str("oid", oid).Msg("render notification not delivered")
		}
	}
	return res, nil
}

// overlay copies add over existing when existing is a JSON object; any other
// existing value is replaced.
func overlay(existing any, add map[string]any) map[string]any {
	base, ok := existing.(map[string]any)
	if !ok || base == nil {
		base = make(map[string]any, len(add))
	}
	for k, v := range add {
		base[k] = v
	}
	return base
}
