// Package milvus implements driven.VectorStore on a Milvus server.
//
// Each modality collection maps to one Milvus collection holding the segment
// id as a VarChar primary key, its file and task ids, its time range and a
// float vector indexed with HNSW under cosine similarity. Collections are
// created on first write, once the vector dimension is known.
package milvus

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

const (
	fieldID      = "id"
	fieldFileID  = "file_id"
	fieldTaskID  = "task_id"
	fieldStartMs = "start_ms"
	fieldEndMs   = "end_ms"
	fieldVector  = "vector"

	maxIDLength = 128
	shards      = 2
)

// Client is the subset of client.Client the store uses.
type Client interface {
	HasCollection(ctx context.Context, collName string) (bool, error)
	CreateCollection(ctx context.Context, schema *entity.Schema, shardsNum int32, opts ...client.CreateCollectionOption) error
	CreateIndex(ctx context.Context, collName string, fieldName string, idx entity.Index, async bool, opts ...client.IndexOption) error
	LoadCollection(ctx context.Context, collName string, async bool, opts ...client.LoadCollectionOption) error
	Upsert(ctx context.Context, collName string, partitionName string, columns ...entity.Column) (entity.Column, error)
	Delete(ctx context.Context, collName string, partitionName string, expr string) error
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
		vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int,
		sp entity.SearchParam, opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
	Close() error
}

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// Store is a Milvus-backed vector store.
type Store struct {
	mc Client

	mu    sync.Mutex
	ready map[string]bool
}

// Connect dials a Milvus server.
func Connect(ctx context.Context, address string) (*Store, error) {
	mc, err := client.NewClient(ctx, client.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("%w: connect milvus %s: %w", domain.ErrStorageUnavailable, address, err)
	}
	logger.Debug("Connected to Milvus at %s", address)
	return New(mc), nil
}

// New wraps an existing client.
func New(mc Client) *Store {
	return &Store{mc: mc, ready: make(map[string]bool)}
}

// Upsert writes or replaces records in a collection.
func (s *Store) Upsert(ctx context.Context, collection string, records []driven.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	dim := len(records[0].Vector)
	if err := s.ensureCollection(ctx, collection, dim); err != nil {
		return err
	}

	ids := make([]string, len(records))
	fileIDs := make([]string, len(records))
	taskIDs := make([]string, len(records))
	starts := make([]int64, len(records))
	ends := make([]int64, len(records))
	vectors := make([][]float32, len(records))
	for i, r := range records {
		if len(r.Vector) != dim {
			return fmt.Errorf("%w: vector %s has dimension %d, want %d", domain.ErrInvalidInput, r.ID, len(r.Vector), dim)
		}
		ids[i], fileIDs[i], taskIDs[i] = r.ID, r.FileID, r.TaskID
		starts[i], ends[i] = r.StartMs, r.EndMs
		vectors[i] = r.Vector
	}

	_, err := s.mc.Upsert(ctx, collection, "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnVarChar(fieldFileID, fileIDs),
		entity.NewColumnVarChar(fieldTaskID, taskIDs),
		entity.NewColumnInt64(fieldStartMs, starts),
		entity.NewColumnInt64(fieldEndMs, ends),
		entity.NewColumnFloatVector(fieldVector, dim, vectors),
	)
	if err != nil {
		return fmt.Errorf("%w: milvus upsert %s: %w", domain.ErrStorageUnavailable, collection, err)
	}
	return nil
}

// Query returns up to k hits ordered by descending cosine similarity.
func (s *Store) Query(
	ctx context.Context, collection string, vector []float32, filter driven.VectorFilter, k int,
) ([]driven.VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}
	exists, err := s.hasCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	expr := ""
	if len(filter.FileIDs) > 0 {
		expr = inExpr(fieldFileID, filter.FileIDs)
	}
	sp, err := entity.NewIndexHNSWSearchParam(max(64, k))
	if err != nil {
		return nil, fmt.Errorf("search params: %w", err)
	}

	results, err := s.mc.Search(ctx, collection, nil, expr, []string{fieldFileID, fieldTaskID},
		[]entity.Vector{entity.FloatVector(vector)}, fieldVector, entity.COSINE, k, sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		return nil, fmt.Errorf("%w: milvus search %s: %w", domain.ErrStorageUnavailable, collection, err)
	}

	var hits []driven.VectorHit
	for _, r := range results {
		cols := make(map[string]entity.Column, len(r.Fields))
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			id, err := r.IDs.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("milvus result id: %w", err)
			}
			hits = append(hits, driven.VectorHit{
				ID:     id,
				FileID: columnString(cols[fieldFileID], i),
				TaskID: columnString(cols[fieldTaskID], i),
				Score:  float64(r.Scores[i]),
			})
		}
	}
	return hits, nil
}

// Delete removes records by id. Missing ids are ignored.
func (s *Store) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	exists, err := s.hasCollection(ctx, collection)
	if err != nil || !exists {
		return err
	}
	if err := s.mc.Delete(ctx, collection, "", inExpr(fieldID, ids)); err != nil {
		return fmt.Errorf("%w: milvus delete %s: %w", domain.ErrStorageUnavailable, collection, err)
	}
	return nil
}

// Reset removes every record in scope across all modality collections.
func (s *Store) Reset(ctx context.Context, scope driven.ResetScope) error {
	expr := fieldID + ` != ""`
	if !scope.All() {
		expr = fieldFileID + " == " + strconv.Quote(scope.FileID)
	}
	for _, m := range domain.AllModalities() {
		collection := m.Collection()
		exists, err := s.hasCollection(ctx, collection)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := s.mc.Delete(ctx, collection, "", expr); err != nil {
			return fmt.Errorf("%w: milvus reset %s: %w", domain.ErrStorageUnavailable, collection, err)
		}
	}
	return nil
}

// Close releases the client connection.
func (s *Store) Close() error {
	return s.mc.Close()
}

func (s *Store) hasCollection(ctx context.Context, collection string) (bool, error) {
	s.mu.Lock()
	ready := s.ready[collection]
	s.mu.Unlock()
	if ready {
		return true, nil
	}
	has, err := s.mc.HasCollection(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("%w: milvus has collection %s: %w", domain.ErrStorageUnavailable, collection, err)
	}
	return has, nil
}

// ensureCollection creates, indexes and loads a collection once.
func (s *Store) ensureCollection(ctx context.Context, collection string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready[collection] {
		return nil
	}

	has, err := s.mc.HasCollection(ctx, collection)
	if err != nil {
		return fmt.Errorf("%w: milvus has collection %s: %w", domain.ErrStorageUnavailable, collection, err)
	}
	if !has {
		schema := entity.NewSchema().WithName(collection).
			WithDescription("sercha-media " + collection).
			WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(maxIDLength).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(fieldFileID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxIDLength)).
			WithField(entity.NewField().WithName(fieldTaskID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxIDLength)).
			WithField(entity.NewField().WithName(fieldStartMs).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldEndMs).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldVector).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dim)))

		if err := s.mc.CreateCollection(ctx, schema, shards); err != nil {
			return fmt.Errorf("%w: create collection %s: %w", domain.ErrStorageUnavailable, collection, err)
		}
		idx, err := entity.NewIndexHNSW(entity.COSINE, 16, 200)
		if err != nil {
			return fmt.Errorf("hnsw index: %w", err)
		}
		if err := s.mc.CreateIndex(ctx, collection, fieldVector, idx, false); err != nil {
			return fmt.Errorf("%w: create index %s: %w", domain.ErrStorageUnavailable, collection, err)
		}
		logger.Info("Created Milvus collection %s (dim %d)", collection, dim)
	}

	if err := s.mc.LoadCollection(ctx, collection, false); err != nil {
		return fmt.Errorf("%w: load collection %s: %w", domain.ErrStorageUnavailable, collection, err)
	}
	s.ready[collection] = true
	return nil
}

// inExpr builds `field in ["a", "b"]`.
func inExpr(field string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return field + " in [" + strings.Join(quoted, ", ") + "]"
}

func columnString(c entity.Column, i int) string {
	if c == nil {
		return ""
	}
	v, err := c.GetAsString(i)
	if err != nil {
		return ""
	}
	return v
}
