package index

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/siherrmann/converse/model"
)

// Index is an in-memory vector index over chunks. Reads and writes to
// disjoint chunk ids proceed concurrently; writes to the same id are
// serialized, so an upsert is never observed half applied.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]*entry
	// order holds chunk ids in first-insertion order and breaks score ties
	// deterministically.
	order []string
}

type entry struct {
	mu    sync.RWMutex
	chunk model.Chunk
}

// NewIndex creates an empty index for vectors of the given dimension.
func NewIndex(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: index dimension must be positive, got %d", model.ErrInvalidConfig, dimension)
	}
	return &Index{
		dimension: dimension,
		entries:   map[string]*entry{},
	}, nil
}

// Dimension returns the fixed vector dimension of the index.
func (i *Index) Dimension() int {
	return i.dimension
}

// Len returns the number of chunks currently in the index.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.order)
}

// Upsert inserts a chunk or replaces the chunk stored under the same id.
// Replacing keeps the chunk's original insertion position, so repeated
// ingestion of the same document does not reshuffle tie ordering.
func (i *Index) Upsert(chunk *model.Chunk) error {
	if chunk == nil || chunk.ID == "" {
		return fmt.Errorf("%w: chunk id must not be empty", model.ErrInvalidConfig)
	}
	if len(chunk.Embedding) != i.dimension {
		return fmt.Errorf("%w: vector has dimension %d, index wants %d", model.ErrInvalidConfig, len(chunk.Embedding), i.dimension)
	}

	stored := *chunk
	stored.Embedding = append([]float32(nil), chunk.Embedding...)

	i.mu.Lock()
	existing, ok := i.entries[chunk.ID]
	if !ok {
		// The entry is fully populated before it becomes visible, so a
		// concurrent read never observes a zero-value chunk.
		i.entries[chunk.ID] = &entry{chunk: stored}
		i.order = append(i.order, chunk.ID)
		i.mu.Unlock()
		return nil
	}
	i.mu.Unlock()

	existing.mu.Lock()
	existing.chunk = stored
	existing.mu.Unlock()

	return nil
}

// UpsertAll inserts all chunks, stopping at the first failure.
func (i *Index) UpsertAll(chunks []*model.Chunk) error {
	for _, chunk := range chunks {
		if err := i.Upsert(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a copy of the chunk stored under id.
func (i *Index) Get(id string) (*model.Chunk, bool) {
	i.mu.RLock()
	existing, ok := i.entries[id]
	i.mu.RUnlock()
	if !ok {
		return nil, false
	}

	existing.mu.RLock()
	chunk := existing.chunk
	existing.mu.RUnlock()
	return &chunk, true
}

// DeleteDocument removes every chunk belonging to the document and returns
// how many were removed.
func (i *Index) DeleteDocument(documentRID uuid.UUID) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	removed := 0
	kept := i.order[:0]
	for _, id := range i.order {
		existing := i.entries[id]
		existing.mu.RLock()
		belongs := existing.chunk.DocumentRID == documentRID
		existing.mu.RUnlock()
		if belongs {
			delete(i.entries, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	i.order = kept

	return removed
}

// Search returns the top k chunks by similarity to the query vector,
// descending. Equal scores keep insertion order, so identical queries over
// identical content always return the same ranking. A non-empty scope
// restricts results to chunks of those documents.
func (i *Index) Search(vector []float32, k int, metric model.SimilarityMetric, scope []uuid.UUID) ([]*model.SearchHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: top k must be positive, got %d", model.ErrInvalidConfig, k)
	}
	if len(vector) != i.dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index wants %d", model.ErrInvalidConfig, len(vector), i.dimension)
	}
	score, err := scoreFunc(metric)
	if err != nil {
		return nil, err
	}

	var scoped map[uuid.UUID]bool
	if len(scope) > 0 {
		scoped = make(map[uuid.UUID]bool, len(scope))
		for _, rid := range scope {
			scoped[rid] = true
		}
	}

	i.mu.RLock()
	candidates := make([]*entry, 0, len(i.order))
	for _, id := range i.order {
		candidates = append(candidates, i.entries[id])
	}
	i.mu.RUnlock()

	hits := make([]*model.SearchHit, 0, len(candidates))
	for _, candidate := range candidates {
		candidate.mu.RLock()
		chunk := candidate.chunk
		candidate.mu.RUnlock()

		if scoped != nil && !scoped[chunk.DocumentRID] {
			continue
		}
		hits = append(hits, &model.SearchHit{
			ChunkID:     chunk.ID,
			DocumentRID: chunk.DocumentRID,
			Text:        chunk.Text,
			Score:       score(vector, chunk.Embedding),
		})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	return hits, nil
}

func scoreFunc(metric model.SimilarityMetric) (func(a, b []float32) float64, error) {
	switch metric {
	case model.MetricCosine:
		return cosineSimilarity, nil
	case model.MetricDotProduct:
		return dotProduct, nil
	default:
		return nil, fmt.Errorf("%w: unknown similarity metric %q", model.ErrInvalidConfig, metric)
	}
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// cosineSimilarity scores 0 when either vector has zero magnitude instead of
// dividing by zero.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
