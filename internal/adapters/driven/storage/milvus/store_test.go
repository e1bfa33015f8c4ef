package milvus

import (
	"context"
	"errors"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

// fakeClient records calls and serves canned search results.
type fakeClient struct {
	collections map[string]bool
	created     []*entity.Schema
	indexed     []string
	loaded      []string
	upserts     map[string][]entity.Column
	deletes     []string
	searchExpr  string
	searchK     int
	results     []client.SearchResult
	err         error
}

func newFakeClient() *fakeClient {
	return &fakeClient{collections: map[string]bool{}, upserts: map[string][]entity.Column{}}
}

func (f *fakeClient) HasCollection(_ context.Context, name string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.collections[name], nil
}

func (f *fakeClient) CreateCollection(
	_ context.Context, schema *entity.Schema, _ int32, _ ...client.CreateCollectionOption,
) error {
	f.created = append(f.created, schema)
	f.collections[schema.CollectionName] = true
	return nil
}

func (f *fakeClient) CreateIndex(
	_ context.Context, name, _ string, _ entity.Index, _ bool, _ ...client.IndexOption,
) error {
	f.indexed = append(f.indexed, name)
	return nil
}

func (f *fakeClient) LoadCollection(_ context.Context, name string, _ bool, _ ...client.LoadCollectionOption) error {
	f.loaded = append(f.loaded, name)
	return nil
}

func (f *fakeClient) Upsert(_ context.Context, name, _ string, columns ...entity.Column) (entity.Column, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.upserts[name] = columns
	return columns[0], nil
}

func (f *fakeClient) Delete(_ context.Context, name, _ string, expr string) error {
	f.deletes = append(f.deletes, name+": "+expr)
	return nil
}

func (f *fakeClient) Search(
	_ context.Context, _ string, _ []string, expr string, _ []string, _ []entity.Vector, _ string,
	_ entity.MetricType, topK int, _ entity.SearchParam, _ ...client.SearchQueryOptionFunc,
) ([]client.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.searchExpr, f.searchK = expr, topK
	return f.results, nil
}

func (f *fakeClient) Close() error { return nil }

func TestStore_UpsertCreatesCollectionOnce(t *testing.T) {
	fc := newFakeClient()
	s := New(fc)
	ctx := context.Background()
	coll := domain.ModalityVisual.Collection()

	records := []driven.VectorRecord{
		{ID: "s1", FileID: "f1", TaskID: "t1", StartMs: 0, EndMs: 1000, Vector: []float32{1, 0, 0}},
		{ID: "s2", FileID: "f1", TaskID: "t1", StartMs: 1000, EndMs: 2000, Vector: []float32{0, 1, 0}},
	}
	require.NoError(t, s.Upsert(ctx, coll, records))
	require.NoError(t, s.Upsert(ctx, coll, records[:1]))

	require.Len(t, fc.created, 1)
	assert.Equal(t, coll, fc.created[0].CollectionName)
	assert.Equal(t, []string{coll}, fc.indexed)
	assert.Equal(t, []string{coll}, fc.loaded)

	cols := fc.upserts[coll]
	require.Len(t, cols, 6)
	assert.Equal(t, fieldID, cols[0].Name())
	assert.Equal(t, 1, cols[0].Len(), "second upsert replaced the first")
}

func TestStore_UpsertDimensionMismatch(t *testing.T) {
	s := New(newFakeClient())
	err := s.Upsert(context.Background(), "media_visual", []driven.VectorRecord{
		{ID: "a", Vector: []float32{1, 2}},
		{ID: "b", Vector: []float32{1, 2, 3}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_Query(t *testing.T) {
	fc := newFakeClient()
	fc.collections["media_visual"] = true
	fc.results = []client.SearchResult{{
		ResultCount: 2,
		IDs:         entity.NewColumnVarChar(fieldID, []string{"s2", "s1"}),
		Fields: []entity.Column{
			entity.NewColumnVarChar(fieldFileID, []string{"f1", "f2"}),
			entity.NewColumnVarChar(fieldTaskID, []string{"t1", "t2"}),
		},
		Scores: []float32{0.9, 0.4},
	}}
	s := New(fc)

	hits, err := s.Query(context.Background(), "media_visual", []float32{1, 0},
		driven.VectorFilter{FileIDs: []string{"f1", "f2"}}, 6)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, driven.VectorHit{ID: "s2", FileID: "f1", TaskID: "t1", Score: float64(float32(0.9))}, hits[0])
	assert.Equal(t, "f2", hits[1].FileID)
	assert.Equal(t, `file_id in ["f1", "f2"]`, fc.searchExpr)
	assert.Equal(t, 6, fc.searchK)
}

func TestStore_QueryMissingCollection(t *testing.T) {
	s := New(newFakeClient())
	hits, err := s.Query(context.Background(), "media_face", []float32{1}, driven.VectorFilter{}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_ErrorsAreStorageUnavailable(t *testing.T) {
	fc := newFakeClient()
	fc.err = errors.New("connection refused")
	s := New(fc)

	_, err := s.Query(context.Background(), "media_visual", []float32{1}, driven.VectorFilter{}, 5)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	err = s.Upsert(context.Background(), "media_visual", []driven.VectorRecord{{ID: "a", Vector: []float32{1}}})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestStore_DeleteAndReset(t *testing.T) {
	fc := newFakeClient()
	fc.collections["media_visual"] = true
	fc.collections["media_audio_music"] = true
	s := New(fc)
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, "media_visual", []string{"s1", `we"ird`}))
	require.NoError(t, s.Delete(ctx, "media_face", []string{"s1"}), "missing collection is a no-op")
	require.NoError(t, s.Reset(ctx, driven.ResetScope{FileID: "f1"}))
	require.NoError(t, s.Reset(ctx, driven.ResetScope{}))

	assert.Equal(t, []string{
		`media_visual: id in ["s1", "we\"ird"]`,
		`media_visual: file_id == "f1"`,
		`media_audio_music: file_id == "f1"`,
		`media_visual: id != ""`,
		`media_audio_music: id != ""`,
	}, fc.deletes)
}
