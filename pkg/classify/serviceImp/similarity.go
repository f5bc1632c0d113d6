package serviceImp

import (
	"sort"

	"triage/entities"
	"triage/pkg/ai/embedder"
	"triage/pkg/classify/service"
)

// sufficientExampleBoost rewards records whose embedding is backed by curated
// ground truth over those relying only on description text.
const sufficientExampleBoost = 1.10

// rankCandidates scores every record's effective embedding against the query
// vector and returns the top K. Records without any embedding are excluded.
// Ordering is descending by boosted score with ties broken by record id
// ascending, so ranking is deterministic.
func rankCandidates(query []float32, records []entities.CTIRecord, topK int) []service.Candidate {
	candidates := make([]service.Candidate, 0, len(records))
	for i := range records {
		rec := &records[i]
		blob := rec.EffectiveEmbedding()
		if len(blob) == 0 {
			continue
		}
		score := embedder.Cosine(query, embedder.BytesToFloats(blob))
		if rec.HasSufficientExamples() {
			score *= sufficientExampleBoost
		}
		candidates = append(candidates, service.Candidate{CTI: rec, Score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].CTI.ID < candidates[j].CTI.ID
	})

	if topK > 0 && topK < len(candidates) {
		candidates = candidates[:topK]
	}
	return candidates
}
