package similarity

import (
	"context"
	"fmt"
	"sort"

	"ChromaFM/logger"
	"ChromaFM/model"
	"ChromaFM/repository"
)

// IndexSet bundles the two per-feature-type indexes. They are never merged
// into one structure because their distance semantics differ: chroma uses
// Euclidean distance on 12-dim distributions, timbre inner product on the
// deployment's embedding dimension.
type IndexSet struct {
	Chroma *Index
	Timbre *Index

	timbreDim int
}

// NewIndexSet creates empty chroma and timbre indexes.
func NewIndexSet(timbreDim int) *IndexSet {
	return &IndexSet{
		Chroma:    NewIndex("chroma", model.ChromaDim, MetricEuclidean),
		Timbre:    NewIndex("timbre", timbreDim, MetricInnerProduct),
		timbreDim: timbreDim,
	}
}

// TimbreDim returns the deployment's fixed timbre dimension.
func (s *IndexSet) TimbreDim() int { return s.timbreDim }

// Bootstrap bulk-loads every complete feature vector known to the store.
// Tracks whose stored vectors disagree with the index dimensions are logged
// and skipped rather than failing the whole build. Iteration is in
// ascending track ID order so reloads produce identical tie-breaking.
func (s *IndexSet) Bootstrap(ctx context.Context, repo repository.FeatureRepository) error {
	all, err := repo.GetAllFeatures(ctx)
	if err != nil {
		return fmt.Errorf("failed to load features for index bootstrap: %w", err)
	}

	ids := make([]int64, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	loaded, skipped := 0, 0
	for _, id := range ids {
		fv := all[id]
		if !fv.Complete(s.timbreDim) {
			skipped++
			continue
		}
		if err := s.AddVector(id, fv); err != nil {
			logger.Warn("skipping track during index bootstrap",
				logger.Int64("trackId", id),
				logger.ErrorField(err))
			skipped++
			continue
		}
		loaded++
	}

	logger.Info("similarity indexes bootstrapped",
		logger.Int("loaded", loaded),
		logger.Int("skipped", skipped))
	return nil
}

// AddVector indexes one complete feature vector in both indexes.
func (s *IndexSet) AddVector(id int64, fv *model.FeatureVector) error {
	if err := s.Chroma.Add([]int64{id}, [][]float64{fv.Chroma}); err != nil {
		return err
	}
	if err := s.Timbre.Add([]int64{id}, [][]float64{fv.Timbre}); err != nil {
		return err
	}
	return nil
}

// AddBatch indexes every complete vector of the batch, chroma first then
// timbre. Incomplete vectors are skipped; per-track index errors are
// collected and returned as strings so the caller can fold them into its
// error report without aborting.
func (s *IndexSet) AddBatch(batch map[int64]*model.FeatureVector) []string {
	ids := make([]int64, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var errs []string
	for _, id := range ids {
		fv := batch[id]
		if !fv.Complete(s.timbreDim) {
			continue
		}
		if err := s.AddVector(id, fv); err != nil {
			errs = append(errs, fmt.Sprintf("index add failed for track %d: %v", id, err))
		}
	}
	return errs
}
