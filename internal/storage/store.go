// Package storage defines the document store the harvester writes into and
// the merge-upsert that keeps previously stored fields intact.
//
// A store holds objects addressed by an opaque id (the record's storage
// key). Each object has string properties and any number of named payloads.
// Backends live in subpackages and register themselves by kind:
//
//	import _ "csvharvest/internal/storage/all"
//
//	st, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: "file:h.db"})
//	if err != nil { ... }
//	defer st.Close()
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an object or payload does not exist.
var ErrNotFound = errors.New("storage: not found")

// ContentTypeJSON is the content type of merged record payloads.
const ContentTypeJSON = "application/json"

// Object is a stored object and its properties.
type Object struct {
	ID         string
	Properties map[string]string
}

// Payload is one named blob attached to an object.
type Payload struct {
	ID          string
	ContentType string
	Data        []byte
}

// Store is the capability set the harvester needs from a document store.
// Implementations must make Create idempotent for a given oid; writes to an
// object that was never created fail.
type Store interface {
	// Get returns the object or ErrNotFound.
	Get(ctx context.Context, oid string) (*Object, error)
	// Create creates the object if needed and returns it.
	Create(ctx context.Context, oid string) (*Object, error)
	// ReadPayload returns the payload or ErrNotFound.
	ReadPayload(ctx context.Context, oid, pid string) (*Payload, error)
	// WritePayload creates or replaces the payload.
	WritePayload(ctx context.Context, oid, pid string, p *Payload) error
	// SetProperty creates or replaces one object property.
	SetProperty(ctx context.Context, oid, key, value string) error
	Close() error
}
