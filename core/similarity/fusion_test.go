package similarity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChromaFM/core/feature"
	"ChromaFM/model"
)

// stubFeatureRepo serves vectors from memory for fusion tests.
type stubFeatureRepo struct {
	features map[int64]*model.FeatureVector
	paths    map[string]int64
}

func (s *stubFeatureRepo) ResolveIDs(ctx context.Context, paths []string) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, p := range paths {
		if id, ok := s.paths[p]; ok {
			out[p] = id
		}
	}
	return out, nil
}

func (s *stubFeatureRepo) MissingVsComplete(ctx context.Context, ids []int64) (map[int64]struct{}, map[int64]struct{}, error) {
	missing := make(map[int64]struct{})
	complete := make(map[int64]struct{})
	for _, id := range ids {
		if _, ok := s.features[id]; ok {
			complete[id] = struct{}{}
		} else {
			missing[id] = struct{}{}
		}
	}
	return missing, complete, nil
}

func (s *stubFeatureRepo) UpsertBatch(ctx context.Context, features map[int64]*model.FeatureVector) (map[int64]struct{}, error) {
	stored := make(map[int64]struct{})
	for id, fv := range features {
		s.features[id] = fv
		stored[id] = struct{}{}
	}
	return stored, nil
}

func (s *stubFeatureRepo) GetFeature(ctx context.Context, id int64) (*model.FeatureVector, error) {
	return s.features[id], nil
}

func (s *stubFeatureRepo) GetFeatures(ctx context.Context, ids []int64) (map[int64]*model.FeatureVector, error) {
	out := make(map[int64]*model.FeatureVector)
	for _, id := range ids {
		if fv, ok := s.features[id]; ok {
			out[id] = fv
		}
	}
	return out, nil
}

func (s *stubFeatureRepo) GetAllFeatures(ctx context.Context) (map[int64]*model.FeatureVector, error) {
	return s.features, nil
}

func (s *stubFeatureRepo) TrackPathOf(ctx context.Context, id int64) (string, error) {
	for p, tid := range s.paths {
		if tid == id {
			return p, nil
		}
	}
	return "", nil
}

// testChroma returns a 12-dim chroma vector at Euclidean distance delta
// from testChroma(0).
func testChroma(delta float64) []float64 {
	v := make([]float64, model.ChromaDim)
	v[0] = 1
	v[1] = delta
	return v
}

func buildFusionFixture(t *testing.T, vectors map[int64]*model.FeatureVector) (*Fuser, *stubFeatureRepo) {
	t.Helper()
	repo := &stubFeatureRepo{features: vectors, paths: map[string]int64{}}
	set := NewIndexSet(2)
	require.NoError(t, set.Bootstrap(context.Background(), repo))
	return NewFuser(set, repo), repo
}

func TestFuserRank(t *testing.T) {
	t.Run("InvalidK", func(t *testing.T) {
		fuser, _ := buildFusionFixture(t, map[int64]*model.FeatureVector{})
		_, err := fuser.Rank(context.Background(), &Query{Chroma: testChroma(0)}, 0)
		require.ErrorIs(t, err, ErrInvalidK)
	})

	t.Run("ChromaOnlyOrdering", func(t *testing.T) {
		fuser, _ := buildFusionFixture(t, map[int64]*model.FeatureVector{
			1: {Chroma: testChroma(0), Tempo: 100, Timbre: []float64{1, 0}},
			2: {Chroma: testChroma(0.1), Tempo: 100, Timbre: []float64{1, 0}},
			3: {Chroma: testChroma(0.2), Tempo: 100, Timbre: []float64{1, 0}},
		})

		got, err := fuser.Rank(context.Background(), &Query{Chroma: testChroma(0)}, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, int64(1), got[0].ID)
		assert.Equal(t, int64(2), got[1].ID)
		assert.Equal(t, int64(3), got[2].ID)
		assert.Greater(t, got[0].Score, got[1].Score)
		assert.Greater(t, got[1].Score, got[2].Score)
	})

	t.Run("FusedScoreMonotonicity", func(t *testing.T) {
		t.Run("ChromaVariesTimbreFixed", func(t *testing.T) {
			fuser, _ := buildFusionFixture(t, map[int64]*model.FeatureVector{
				1: {Chroma: testChroma(0), Tempo: 100, Timbre: []float64{1, 0}},
				2: {Chroma: testChroma(0.1), Tempo: 100, Timbre: []float64{1, 0}},
				3: {Chroma: testChroma(0.2), Tempo: 100, Timbre: []float64{1, 0}},
			})

			got, err := fuser.Rank(context.Background(),
				&Query{Chroma: testChroma(0), Timbre: []float64{1, 0}}, 3)
			require.NoError(t, err)
			require.Equal(t, []int64{1, 2, 3}, candidateIDs(got))
			// Timbre similarity is identical for all three, so the fused
			// score must strictly track chroma similarity.
			assert.Greater(t, got[0].Score, got[1].Score)
			assert.Greater(t, got[1].Score, got[2].Score)
		})

		t.Run("TimbreVariesChromaFixed", func(t *testing.T) {
			fuser, _ := buildFusionFixture(t, map[int64]*model.FeatureVector{
				1: {Chroma: testChroma(0), Tempo: 100, Timbre: []float64{1, 0}},
				2: {Chroma: testChroma(0), Tempo: 100, Timbre: []float64{0.5, 0.5}},
				3: {Chroma: testChroma(0), Tempo: 100, Timbre: []float64{0, 1}},
			})

			got, err := fuser.Rank(context.Background(),
				&Query{Chroma: testChroma(0), Timbre: []float64{1, 0}}, 3)
			require.NoError(t, err)
			require.Equal(t, []int64{1, 2, 3}, candidateIDs(got))
			assert.Greater(t, got[0].Score, got[1].Score)
			assert.Greater(t, got[1].Score, got[2].Score)
		})
	})

	t.Run("TempoBoostStrictlyIncreasesScore", func(t *testing.T) {
		vectors := map[int64]*model.FeatureVector{
			1: {Chroma: testChroma(0), Tempo: 118, Timbre: []float64{1, 0}},
			2: {Chroma: testChroma(0.1), Tempo: 200, Timbre: []float64{1, 0}},
			3: {Chroma: testChroma(0.2), Tempo: 60, Timbre: []float64{1, 0}},
		}

		fuser, _ := buildFusionFixture(t, vectors)
		q := testChroma(0)
		without, err := fuser.Rank(context.Background(), &Query{Chroma: q}, 3)
		require.NoError(t, err)
		boosted, err := fuser.Rank(context.Background(), &Query{Chroma: q, Tempo: 120}, 3)
		require.NoError(t, err)

		// Track 1 sits within five percent of 120 and must score strictly
		// higher than without the boost; the out-of-band tracks keep their
		// scores untouched.
		assert.Greater(t, scoreOf(t, boosted, 1), scoreOf(t, without, 1))
		assert.InDelta(t, 1.1*scoreOf(t, without, 1), scoreOf(t, boosted, 1), 1e-12)
		assert.InDelta(t, scoreOf(t, without, 2), scoreOf(t, boosted, 2), 1e-12)
		assert.InDelta(t, scoreOf(t, without, 3), scoreOf(t, boosted, 3), 1e-12)
	})

	t.Run("TempoBoostReordersCloseScores", func(t *testing.T) {
		vectors := map[int64]*model.FeatureVector{
			1: {Chroma: testChroma(0), Tempo: 90, Timbre: []float64{1, 0}},
			2: {Chroma: testChroma(0.1), Tempo: 200, Timbre: []float64{1, 0}},
			3: {Chroma: testChroma(0.105), Tempo: 120, Timbre: []float64{1, 0}},
		}

		fuser, _ := buildFusionFixture(t, vectors)
		without, err := fuser.Rank(context.Background(), &Query{Chroma: testChroma(0)}, 3)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3}, candidateIDs(without))

		with, err := fuser.Rank(context.Background(), &Query{Chroma: testChroma(0), Tempo: 120}, 3)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3, 2}, candidateIDs(with))
	})

	t.Run("TimbreBreaksChromaTies", func(t *testing.T) {
		fuser, _ := buildFusionFixture(t, map[int64]*model.FeatureVector{
			1: {Chroma: testChroma(0), Tempo: 100, Timbre: []float64{1, 0}},
			2: {Chroma: testChroma(0), Tempo: 100, Timbre: []float64{0.5, 0.5}},
			3: {Chroma: testChroma(0), Tempo: 100, Timbre: []float64{0, 1}},
		})

		got, err := fuser.Rank(context.Background(), &Query{Chroma: testChroma(0), Timbre: []float64{1, 0}}, 3)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3}, candidateIDs(got))
	})

	t.Run("NonPositiveMeanDotZeroesTimbre", func(t *testing.T) {
		fuser, _ := buildFusionFixture(t, map[int64]*model.FeatureVector{
			1: {Chroma: testChroma(0), Tempo: 100, Timbre: []float64{-1, 0}},
			2: {Chroma: testChroma(0), Tempo: 100, Timbre: []float64{0, -1}},
			3: {Chroma: testChroma(0), Tempo: 100, Timbre: []float64{-0.5, -0.5}},
		})

		got, err := fuser.Rank(context.Background(), &Query{Chroma: testChroma(0), Timbre: []float64{1, 0}}, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		// Chroma distances are all zero, timbre contributes nothing, so
		// every score is the bare chroma weight and IDs break the tie.
		for _, c := range got {
			assert.InDelta(t, 0.6, c.Score, 1e-12)
		}
		assert.Equal(t, []int64{1, 2, 3}, candidateIDs(got))
	})
}

func TestFuserRankByID(t *testing.T) {
	vectors := map[int64]*model.FeatureVector{
		1: {Chroma: testChroma(0), Tempo: 100, Timbre: []float64{1, 0}},
		2: {Chroma: testChroma(0.1), Tempo: 100, Timbre: []float64{0.9, 0.1}},
	}

	t.Run("SelfIsTopHit", func(t *testing.T) {
		fuser, _ := buildFusionFixture(t, vectors)
		got, err := fuser.RankByID(context.Background(), 1, 2)
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, int64(1), got[0].ID)
	})

	t.Run("UnknownTrack", func(t *testing.T) {
		fuser, _ := buildFusionFixture(t, vectors)
		_, err := fuser.RankByID(context.Background(), 99, 2)
		var notFound *feature.ErrFeaturesNotFound
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, int64(99), notFound.TrackID)
	})

	t.Run("IncompleteFeatures", func(t *testing.T) {
		incomplete := map[int64]*model.FeatureVector{
			1: {Chroma: testChroma(0), Tempo: 100, Timbre: []float64{1, 0}},
			5: {Chroma: testChroma(0), Tempo: 0, Timbre: []float64{1, 0}},
		}
		fuser, _ := buildFusionFixture(t, incomplete)
		_, err := fuser.RankByID(context.Background(), 5, 2)
		var notFound *feature.ErrFeaturesNotFound
		require.ErrorAs(t, err, &notFound)
	})
}

func scoreOf(t *testing.T, candidates []Candidate, id int64) float64 {
	t.Helper()
	for _, c := range candidates {
		if c.ID == id {
			return c.Score
		}
	}
	t.Fatalf("candidate %d not in result", id)
	return 0
}

func candidateIDs(candidates []Candidate) []int64 {
	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return ids
}
