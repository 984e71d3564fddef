package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvharvest/internal/notify"
)

type fakeStore struct {
	mu       sync.Mutex
	objects  map[string]*Object
	payloads map[string]*Payload

	getErr, createErr, readErr, writeErr, propErr error
	writes                                        int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string]*Object{}, payloads: map[string]*Payload{}}
}

func (f *fakeStore) Get(_ context.Context, oid string) (*Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	o, ok := f.objects[oid]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (f *fakeStore) Create(_ context.Context, oid string) (*Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if o, ok := f.objects[oid]; ok {
		return o, nil
	}
	o := &Object{ID: oid, Properties: map[string]string{}}
	f.objects[oid] = o
	return o, nil
}

func (f *fakeStore) ReadPayload(_ context.Context, oid, pid string) (*Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	p, ok := f.payloads[oid+"/"+pid]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) WritePayload(_ context.Context, oid, pid string, p *Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if _, ok := f.objects[oid]; !ok {
		return ErrNotFound
	}
	f.writes++
	cp := *p
	f.payloads[oid+"/"+pid] = &cp
	return nil
}

func (f *fakeStore) SetProperty(_ context.Context, oid, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.propErr != nil {
		return f.propErr
	}
	o, ok := f.objects[oid]
	if !ok {
		return ErrNotFound
	}
	o.Properties[key] = value
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) doc(t *testing.T, oid string) map[string]any {
	t.Helper()
	p, ok := f.payloads[oid+"/"+DefaultPayloadID]
	require.True(t, ok, "payload for %s", oid)
	assert.Equal(t, ContentTypeJSON, p.ContentType)
	var m map[string]any
	require.NoError(t, json.Unmarshal(p.Data, &m))
	return m
}

func sampleInput() MergeInput {
	return MergeInput{
		RecordID: "1",
		IDPrefix: "rec:",
		Data:     map[string]any{"id": "1", "title": "Alpha", "tags": []string{"x", "y"}},
		Metadata: map[string]any{"dc.identifier": "rec:1"},
	}
}

func TestMerge_CreatesObject(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	rec := &notify.Recorder{}
	m := NewMerger(st, "", WithNotifier(rec), WithJob("nightly"))
	assert.Equal(t, DefaultPayloadID, m.PayloadID())

	res, err := m.Merge(context.Background(), "oid1", sampleInput())
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Created: true, Changed: true}, res)

	doc := st.doc(t, "oid1")
	assert.Equal(t, "rec:", doc[FieldRecordPrefix])
	assert.Equal(t, map[string]any{"id": "1", "title": "Alpha", "tags": []any{"x", "y"}}, doc[FieldData])
	assert.Equal(t, map[string]any{"dc.identifier": "rec:1"}, doc[FieldMetadata])
	assert.Equal(t, "true", st.objects["oid1"].Properties[PropRenderPending])

	msgs := rec.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "oid1", msgs[0].OID)
	assert.Equal(t, "1", msgs[0].RecordID)
	assert.Equal(t, DefaultPayloadID, msgs[0].PayloadID)
	assert.Equal(t, "nightly", msgs[0].Job)
	assert.False(t, msgs[0].Time.IsZero())
}

func TestMerge_PreservesExistingKeys(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	ctx := context.Background()
	_, err := st.Create(ctx, "oid1")
	require.NoError(t, err)
	require.NoError(t, st.WritePayload(ctx, "oid1", DefaultPayloadID, &Payload{Data: []byte(`{
		"data": {"title": "Old", "note": "keep me", "count": 12345678901234567890},
		"metadata": {"curated": true},
		"extra": "untouched"
	}`)}))

	res, err := NewMerger(st, "").Merge(ctx, "oid1", sampleInput())
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.True(t, res.Changed)

	doc := st.doc(t, "oid1")
	data := doc[FieldData].(map[string]any)
	assert.Equal(t, "Alpha", data["title"])
	assert.Equal(t, "keep me", data["note"])
	assert.Contains(t, string(st.payloads["oid1/"+DefaultPayloadID].Data), "12345678901234567890")
	meta := doc[FieldMetadata].(map[string]any)
	assert.Equal(t, true, meta["curated"])
	assert.Equal(t, "rec:1", meta["dc.identifier"])
	assert.Equal(t, "untouched", doc["extra"])
}

func TestMerge_UnchangedSecondWrite(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	m := NewMerger(st, "")
	ctx := context.Background()

	_, err := m.Merge(ctx, "oid1", sampleInput())
	require.NoError(t, err)
	res, err := m.Merge(ctx, "oid1", sampleInput())
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Created: false, Changed: false}, res)
	assert.Equal(t, 2, st.writes)
}

func TestMerge_NonObjectDataReplaced(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	ctx := context.Background()
	_, _ = st.Create(ctx, "oid1")
	require.NoError(t, st.WritePayload(ctx, "oid1", DefaultPayloadID, &Payload{Data: []byte(`{"data": "scalar"}`)}))

	_, err := NewMerger(st, "").Merge(ctx, "oid1", sampleInput())
	require.NoError(t, err)
	assert.IsType(t, map[string]any{}, st.doc(t, "oid1")[FieldData])
}

func TestMerge_EmptyPayloadTreatedAsEmptyDocument(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	ctx := context.Background()
	_, _ = st.Create(ctx, "oid1")
	require.NoError(t, st.WritePayload(ctx, "oid1", DefaultPayloadID, &Payload{Data: []byte("  ")}))

	res, err := NewMerger(st, "").Merge(ctx, "oid1", sampleInput())
	require.NoError(t, err)
	assert.True(t, res.Changed)
}

func TestMerge_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	ctx := context.Background()

	t.Run("get", func(t *testing.T) {
		st := newFakeStore()
		st.getErr = boom
		_, err := NewMerger(st, "").Merge(ctx, "o", sampleInput())
		require.ErrorIs(t, err, boom)
	})
	t.Run("create", func(t *testing.T) {
		st := newFakeStore()
		st.createErr = boom
		_, err := NewMerger(st, "").Merge(ctx, "o", sampleInput())
		require.ErrorIs(t, err, boom)
	})
	t.Run("read", func(t *testing.T) {
		st := newFakeStore()
		st.readErr = boom
		_, err := NewMerger(st, "").Merge(ctx, "o", sampleInput())
		require.ErrorIs(t, err, boom)
	})
	t.Run("write", func(t *testing.T) {
		st := newFakeStore()
		st.writeErr = boom
		_, err := NewMerger(st, "").Merge(ctx, "o", sampleInput())
		require.ErrorIs(t, err, boom)
	})
	t.Run("corrupt payload", func(t *testing.T) {
		st := newFakeStore()
		_, _ = st.Create(ctx, "o")
		require.NoError(t, st.WritePayload(ctx, "o", DefaultPayloadID, &Payload{Data: []byte("{not json")}))
		_, err := NewMerger(st, "").Merge(ctx, "o", sampleInput())
		require.ErrorContains(t, err, "parse payload")
	})
}

func TestMerge_SideEffectFailuresAreNotFatal(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.propErr = errors.New("property table locked")
	rec := &notify.Recorder{PublishErr: errors.New("broker down")}

	res, err := NewMerger(st, "", WithNotifier(rec)).Merge(context.Background(), "oid1", sampleInput())
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Empty(t, rec.Messages())
	_ = st.doc(t, "oid1")
}
