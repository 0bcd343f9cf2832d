package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChromaFM/core/similarity"
	"ChromaFM/model"
)

const testTimbreDim = 2

// fakeRepo is an in-memory FeatureRepository that records upsert batches.
type fakeRepo struct {
	mu       sync.Mutex
	paths    map[string]int64
	features map[int64]*model.FeatureVector
	batches  []int
}

func newFakeRepo(paths map[string]int64) *fakeRepo {
	return &fakeRepo{
		paths:    paths,
		features: make(map[int64]*model.FeatureVector),
	}
}

func (f *fakeRepo) ResolveIDs(ctx context.Context, paths []string) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, p := range paths {
		if id, ok := f.paths[p]; ok {
			out[p] = id
		}
	}
	return out, nil
}

func (f *fakeRepo) MissingVsComplete(ctx context.Context, ids []int64) (map[int64]struct{}, map[int64]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	missing := make(map[int64]struct{})
	complete := make(map[int64]struct{})
	for _, id := range ids {
		fv, ok := f.features[id]
		if ok && fv.Complete(testTimbreDim) {
			complete[id] = struct{}{}
		} else {
			missing[id] = struct{}{}
		}
	}
	return missing, complete, nil
}

func (f *fakeRepo) UpsertBatch(ctx context.Context, features map[int64]*model.FeatureVector) (map[int64]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := make(map[int64]struct{})
	for id, fv := range features {
		f.features[id] = fv
		stored[id] = struct{}{}
	}
	f.batches = append(f.batches, len(features))
	return stored, nil
}

func (f *fakeRepo) GetFeature(ctx context.Context, id int64) (*model.FeatureVector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.features[id], nil
}

func (f *fakeRepo) GetFeatures(ctx context.Context, ids []int64) (map[int64]*model.FeatureVector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]*model.FeatureVector)
	for _, id := range ids {
		if fv, ok := f.features[id]; ok {
			out[id] = fv
		}
	}
	return out, nil
}

func (f *fakeRepo) GetAllFeatures(ctx context.Context) (map[int64]*model.FeatureVector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]*model.FeatureVector, len(f.features))
	for id, fv := range f.features {
		out[id] = fv
	}
	return out, nil
}

func (f *fakeRepo) TrackPathOf(ctx context.Context, id int64) (string, error) {
	for p, tid := range f.paths {
		if tid == id {
			return p, nil
		}
	}
	return "", nil
}

// fakeExtractor serves canned vectors and records which paths it saw.
type fakeExtractor struct {
	mu      sync.Mutex
	vectors map[string]*model.FeatureVector
	fail    map[string]bool
	calls   []string
}

func (f *fakeExtractor) Extract(ctx context.Context, path string) (*model.FeatureVector, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()
	if f.fail[path] {
		return nil, fmt.Errorf("decode failed")
	}
	return f.vectors[path], nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func completeVector() *model.FeatureVector {
	chroma := make([]float64, model.ChromaDim)
	chroma[0] = 1
	return &model.FeatureVector{Chroma: chroma, Tempo: 100, Timbre: []float64{1, 0}}
}

func TestPipelineExtract(t *testing.T) {
	t.Run("MixedRun", func(t *testing.T) {
		repo := newFakeRepo(map[string]int64{
			"a.mp3": 1, "b.mp3": 2, "c.mp3": 3, "d.mp3": 4,
		})
		// Track 2 already has complete features and must not be re-extracted.
		repo.features[2] = completeVector()

		extractor := &fakeExtractor{
			vectors: map[string]*model.FeatureVector{
				"a.mp3": completeVector(),
				"c.mp3": completeVector(),
			},
			fail: map[string]bool{"d.mp3": true},
		}

		indexes := similarity.NewIndexSet(testTimbreDim)
		p := New(repo, indexes, extractor)

		report, err := p.Extract(context.Background(),
			[]string{"a.mp3", "b.mp3", "c.mp3", "d.mp3", "missing.mp3"},
			Options{BatchSize: 2, Workers: 2})
		require.NoError(t, err)

		assert.Equal(t, map[int64]struct{}{1: {}, 2: {}, 3: {}}, report.SuccessfulIDs)
		assert.Len(t, report.Errors, 2)

		// Only the three missing tracks are extracted.
		assert.Equal(t, 3, extractor.callCount())

		// Both freshly extracted complete vectors reached the live indexes.
		assert.Equal(t, 2, indexes.Chroma.Len())
		assert.Equal(t, 2, indexes.Timbre.Len())
		assert.True(t, indexes.Chroma.Contains(1))
		assert.True(t, indexes.Chroma.Contains(3))
		assert.False(t, indexes.Chroma.Contains(4))
	})

	t.Run("AllComplete", func(t *testing.T) {
		repo := newFakeRepo(map[string]int64{"a.mp3": 1, "b.mp3": 2})
		repo.features[1] = completeVector()
		repo.features[2] = completeVector()

		extractor := &fakeExtractor{}
		indexes := similarity.NewIndexSet(testTimbreDim)
		p := New(repo, indexes, extractor)

		report, err := p.Extract(context.Background(), []string{"a.mp3", "b.mp3"}, Options{})
		require.NoError(t, err)
		assert.Equal(t, map[int64]struct{}{1: {}, 2: {}}, report.SuccessfulIDs)
		assert.Empty(t, report.Errors)
		assert.Zero(t, extractor.callCount())
	})

	t.Run("BatchFlushSizes", func(t *testing.T) {
		repo := newFakeRepo(map[string]int64{
			"a.mp3": 1, "b.mp3": 2, "c.mp3": 3, "d.mp3": 4, "e.mp3": 5,
		})
		extractor := &fakeExtractor{
			vectors: map[string]*model.FeatureVector{
				"a.mp3": completeVector(),
				"b.mp3": completeVector(),
				"c.mp3": completeVector(),
				"d.mp3": completeVector(),
				"e.mp3": completeVector(),
			},
		}

		indexes := similarity.NewIndexSet(testTimbreDim)
		p := New(repo, indexes, extractor)

		report, err := p.Extract(context.Background(),
			[]string{"a.mp3", "b.mp3", "c.mp3", "d.mp3", "e.mp3"},
			Options{BatchSize: 2, Workers: 2})
		require.NoError(t, err)
		require.Empty(t, report.Errors)
		require.Len(t, report.SuccessfulIDs, 5)

		// Five clean extractions with batch size two flush twice full and
		// once with the remainder.
		assert.Equal(t, []int{2, 2, 1}, repo.batches)
		assert.Equal(t, 5, indexes.Chroma.Len())
	})

	t.Run("IncompleteVectorStoredButNotIndexed", func(t *testing.T) {
		repo := newFakeRepo(map[string]int64{"a.mp3": 1})
		chroma := make([]float64, model.ChromaDim)
		chroma[0] = 1
		extractor := &fakeExtractor{
			vectors: map[string]*model.FeatureVector{
				// No timbre embedding, so the vector is incomplete.
				"a.mp3": {Chroma: chroma, Tempo: 100},
			},
		}

		indexes := similarity.NewIndexSet(testTimbreDim)
		p := New(repo, indexes, extractor)

		report, err := p.Extract(context.Background(), []string{"a.mp3"}, Options{})
		require.NoError(t, err)

		assert.Contains(t, report.SuccessfulIDs, int64(1))
		fv, _ := repo.GetFeature(context.Background(), 1)
		require.NotNil(t, fv)
		assert.Zero(t, indexes.Chroma.Len())
		assert.Zero(t, indexes.Timbre.Len())
	})

	t.Run("ProgressReachesTotal", func(t *testing.T) {
		repo := newFakeRepo(map[string]int64{"a.mp3": 1, "b.mp3": 2})
		extractor := &fakeExtractor{
			vectors: map[string]*model.FeatureVector{
				"a.mp3": completeVector(),
				"b.mp3": completeVector(),
			},
		}

		indexes := similarity.NewIndexSet(testTimbreDim)
		p := New(repo, indexes, extractor)

		var mu sync.Mutex
		var lastCurrent, lastTotal int
		_, err := p.Extract(context.Background(), []string{"a.mp3", "b.mp3"}, Options{
			Progress: func(current, total int, message string) {
				mu.Lock()
				lastCurrent, lastTotal = current, total
				mu.Unlock()
			},
		})
		require.NoError(t, err)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 2, lastTotal)
		assert.Equal(t, 2, lastCurrent)
	})
}
