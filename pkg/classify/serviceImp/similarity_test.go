package serviceImp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/entities"
	"triage/pkg/ai/embedder"
)

func ctiWithVector(id uint, vec []float32) entities.CTIRecord {
	return entities.CTIRecord{
		ID:              id,
		EmbeddingVector: embedder.FloatsToBytes(vec),
	}
}

func TestRankCandidatesExcludesRecordsWithoutEmbedding(t *testing.T) {
	records := []entities.CTIRecord{
		{ID: 1},
		ctiWithVector(2, []float32{1, 0}),
	}
	ranked := rankCandidates([]float32{1, 0}, records, 8)
	require.Len(t, ranked, 1)
	assert.Equal(t, uint(2), ranked[0].CTI.ID)
	assert.InDelta(t, 1.0, ranked[0].Score, 1e-9)
}

func TestRankCandidatesBoostsSufficientExamples(t *testing.T) {
	// Both records carry the identical vector; the one with curated examples
	// must rank first on the boosted score.
	boosted := ctiWithVector(1, []float32{1, 0})
	boosted.ExampleCount = 3
	plain := ctiWithVector(2, []float32{1, 0})

	ranked := rankCandidates([]float32{1, 0}, []entities.CTIRecord{plain, boosted}, 8)
	require.Len(t, ranked, 2)
	assert.Equal(t, uint(1), ranked[0].CTI.ID)
	assert.InDelta(t, 1.10, ranked[0].Score, 1e-9)
	assert.InDelta(t, 1.0, ranked[1].Score, 1e-9)
}

func TestRankCandidatesTieBreaksByID(t *testing.T) {
	a := ctiWithVector(7, []float32{1, 0})
	b := ctiWithVector(3, []float32{1, 0})
	ranked := rankCandidates([]float32{1, 0}, []entities.CTIRecord{a, b}, 8)
	require.Len(t, ranked, 2)
	assert.Equal(t, uint(3), ranked[0].CTI.ID)
	assert.Equal(t, uint(7), ranked[1].CTI.ID)
}

func TestRankCandidatesCutsAtTopK(t *testing.T) {
	records := []entities.CTIRecord{
		ctiWithVector(1, []float32{1, 0}),
		ctiWithVector(2, []float32{0.9, 0.1}),
		ctiWithVector(3, []float32{0, 1}),
	}
	ranked := rankCandidates([]float32{1, 0}, records, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, uint(1), ranked[0].CTI.ID)
	assert.Equal(t, uint(2), ranked[1].CTI.ID)
}
