package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/converse/helper"
	"github.com/siherrmann/converse/model"
	loadSql "github.com/siherrmann/converse/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	UpsertChunk(chunk *model.Chunk) error
	SelectChunk(id string) (*model.Chunk, error)
	SelectChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error)
	SelectChunksBySimilarity(embedding []float32, limit int, metric model.SimilarityMetric, documentRIDs []uuid.UUID) ([]*model.SearchHit, error)
	DeleteChunksByDocument(documentRID uuid.UUID) (int, error)
}

// ChunksDBHandler handles chunk-related database operations
type ChunksDBHandler struct {
	db *helper.Database
}

// NewChunksDBHandler creates a new chunks database handler.
// It initializes the database connection and loads chunk-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	chunksDbHandler := &ChunksDBHandler{
		db: db,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table in the database with the given
// embedding dimension. If the table already exists, it does not create it
// again.
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing chunks table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

const upsertRetries = 3

// UpsertChunk inserts a chunk or replaces the row stored under the same id.
// Serialization conflicts are retried a bounded number of times before they
// surface as ErrIndexWriteConflict.
func (h *ChunksDBHandler) UpsertChunk(chunk *model.Chunk) error {
	var err error
	for attempt := 0; attempt < upsertRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
		}
		err = h.upsertChunkOnce(chunk)
		if err == nil || !errors.Is(err, model.ErrIndexWriteConflict) {
			return err
		}
	}
	return err
}

func (h *ChunksDBHandler) upsertChunkOnce(chunk *model.Chunk) error {
	embeddingVector := pgvector.NewVector(chunk.Embedding)
	row := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_chunk($1, $2, $3, $4, $5, $6, $7)`,
		chunk.ID,
		chunk.DocumentRID,
		chunk.Text,
		chunk.StartOffset,
		chunk.EndOffset,
		chunk.SequenceIndex,
		embeddingVector,
	)

	err := row.Scan(
		&chunk.ID,
		&chunk.DocumentRID,
		&chunk.Text,
		&chunk.StartOffset,
		&chunk.EndOffset,
		&chunk.SequenceIndex,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && (pqErr.Code == "40001" || pqErr.Code == "40P01") {
			return helper.NewError("upsert chunk", fmt.Errorf("%w: %v", model.ErrIndexWriteConflict, err))
		}
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectChunk retrieves a chunk by id. The stored embedding is not read
// back.
func (h *ChunksDBHandler) SelectChunk(id string) (*model.Chunk, error) {
	chunk := &model.Chunk{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_chunk($1)`,
		id,
	)

	err := row.Scan(
		&chunk.ID,
		&chunk.DocumentRID,
		&chunk.Text,
		&chunk.StartOffset,
		&chunk.EndOffset,
		&chunk.SequenceIndex,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return chunk, nil
}

// SelectChunksByDocument retrieves a document's chunks in sequence order
func (h *ChunksDBHandler) SelectChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentRID,
			&chunk.Text,
			&chunk.StartOffset,
			&chunk.EndOffset,
			&chunk.SequenceIndex,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// SelectChunksBySimilarity performs vector similarity search under the given
// metric. If documentRIDs is nil or empty, searches across all documents.
func (h *ChunksDBHandler) SelectChunksBySimilarity(embedding []float32, limit int, metric model.SimilarityMetric, documentRIDs []uuid.UUID) ([]*model.SearchHit, error) {
	embeddingVector := pgvector.NewVector(embedding)

	var documentRIDsParam interface{}
	if len(documentRIDs) > 0 {
		documentRIDsParam = pq.Array(documentRIDs)
	} else {
		documentRIDsParam = nil
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3, $4)`,
		embeddingVector,
		limit,
		string(metric),
		documentRIDsParam,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var hits []*model.SearchHit
	for rows.Next() {
		hit := &model.SearchHit{}
		var startOffset, endOffset, sequenceIndex int
		err := rows.Scan(
			&hit.ChunkID,
			&hit.DocumentRID,
			&hit.Text,
			&startOffset,
			&endOffset,
			&sequenceIndex,
			&hit.Score,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

// DeleteChunksByDocument deletes all chunks of a document and returns the
// number of removed rows.
func (h *ChunksDBHandler) DeleteChunksByDocument(documentRID uuid.UUID) (int, error) {
	var deleted int
	row := h.db.Instance.QueryRow(
		`SELECT * FROM delete_chunks_by_document($1)`,
		documentRID,
	)

	err := row.Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}

	return deleted, nil
}
