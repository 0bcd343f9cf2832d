package similarity

import (
	"context"
	"fmt"
	"sort"

	"ChromaFM/core/feature"
	"ChromaFM/repository"
)

// Chroma and timbre similarities are blended with fixed weights; tracks in
// a close tempo band get a small multiplicative boost on top.
const (
	chromaWeight = 0.6
	timbreWeight = 0.4

	tempoBandRatio = 0.05
	tempoBoost     = 1.1
)

// Query carries the feature values a ranking is computed against. Timbre
// may be nil when the caller has no timbre embedding; ranking then falls
// back to chroma and tempo alone.
type Query struct {
	Chroma []float64
	Timbre []float64
	Tempo  float64
}

// Candidate is one ranked result with its fused score.
type Candidate struct {
	ID    int64
	Score float64
}

// Fuser ranks indexed tracks against a query by blending per-index
// similarities into a single score.
type Fuser struct {
	set  *IndexSet
	repo repository.FeatureRepository
}

func NewFuser(set *IndexSet, repo repository.FeatureRepository) *Fuser {
	return &Fuser{set: set, repo: repo}
}

// TimbreDim returns the timbre dimension of the underlying indexes.
func (f *Fuser) TimbreDim() int { return f.set.TimbreDim() }

// Rank searches both indexes with the query and fuses the results into a
// single descending-score list of at most k candidates. Candidates found
// by only one index still participate, with the missing side's similarity
// taken as zero. Ties are broken by ascending track ID.
func (f *Fuser) Rank(ctx context.Context, q *Query, k int) ([]Candidate, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	chromaHits, err := f.set.Chroma.Search(q.Chroma, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search chroma index: %w", err)
	}

	var timbreHits []Neighbor
	if q.Timbre != nil {
		timbreHits, err = f.set.Timbre.Search(q.Timbre, k)
		if err != nil {
			return nil, fmt.Errorf("failed to search timbre index: %w", err)
		}
	}

	chromaSims := chromaSimilarities(chromaHits)
	timbreSims := timbreSimilarities(timbreHits)

	ids := make(map[int64]struct{}, len(chromaSims)+len(timbreSims))
	for id := range chromaSims {
		ids[id] = struct{}{}
	}
	for id := range timbreSims {
		ids[id] = struct{}{}
	}

	candidates := make([]Candidate, 0, len(ids))
	for id := range ids {
		score := chromaWeight*chromaSims[id] + timbreWeight*timbreSims[id]
		candidates = append(candidates, Candidate{ID: id, Score: score})
	}

	if q.Tempo > 0 {
		idList := make([]int64, len(candidates))
		for i, c := range candidates {
			idList[i] = c.ID
		}
		tempos, err := f.repo.GetFeatures(ctx, idList)
		if err != nil {
			return nil, fmt.Errorf("failed to load candidate tempos: %w", err)
		}
		for i := range candidates {
			fv, ok := tempos[candidates[i].ID]
			if !ok || fv.Tempo <= 0 {
				continue
			}
			if withinTempoBand(q.Tempo, fv.Tempo) {
				candidates[i].Score *= tempoBoost
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// RankByID ranks against the stored features of an indexed track. The
// track itself usually appears as its own top hit; callers that want
// "similar but not identical" drop it from the result.
func (f *Fuser) RankByID(ctx context.Context, trackID int64, k int) ([]Candidate, error) {
	fv, err := f.repo.GetFeature(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to load features for track %d: %w", trackID, err)
	}
	if fv == nil || !fv.Complete(f.set.TimbreDim()) {
		return nil, &feature.ErrFeaturesNotFound{TrackID: trackID}
	}
	return f.Rank(ctx, &Query{Chroma: fv.Chroma, Timbre: fv.Timbre, Tempo: fv.Tempo}, k)
}

// chromaSimilarities converts Euclidean distances into (0, 1] similarities
// scaled by the result set's own mean distance. A zero mean means every
// hit is an exact match.
func chromaSimilarities(hits []Neighbor) map[int64]float64 {
	sims := make(map[int64]float64, len(hits))
	if len(hits) == 0 {
		return sims
	}
	var sum float64
	for _, h := range hits {
		sum += h.Distance
	}
	mean := sum / float64(len(hits))
	for _, h := range hits {
		if mean == 0 {
			sims[h.ID] = 1
			continue
		}
		sims[h.ID] = 1 / (1 + h.Distance/mean)
	}
	return sims
}

// timbreSimilarities converts inner-product distances back to dot products
// and scales by the result set's mean. A non-positive mean leaves every
// similarity at zero rather than flipping signs.
func timbreSimilarities(hits []Neighbor) map[int64]float64 {
	sims := make(map[int64]float64, len(hits))
	if len(hits) == 0 {
		return sims
	}
	var sum float64
	dots := make([]float64, len(hits))
	for i, h := range hits {
		dots[i] = -h.Distance
		sum += dots[i]
	}
	mean := sum / float64(len(hits))
	for i, h := range hits {
		if mean <= 0 {
			sims[h.ID] = 0
			continue
		}
		sims[h.ID] = dots[i] / mean
	}
	return sims
}

func withinTempoBand(query, candidate float64) bool {
	diff := query - candidate
	if diff < 0 {
		diff = -diff
	}
	return diff <= tempoBandRatio*query
}
