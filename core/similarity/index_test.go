package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexAdd(t *testing.T) {
	t.Run("LengthMismatch", func(t *testing.T) {
		ix := NewIndex("test", 2, MetricEuclidean)
		err := ix.Add([]int64{1, 2}, [][]float64{{1, 0}})
		require.ErrorIs(t, err, ErrLengthMismatch)
		assert.Equal(t, 0, ix.Len())
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		ix := NewIndex("test", 2, MetricEuclidean)
		err := ix.Add([]int64{1}, [][]float64{{1, 0, 0}})
		var dim *ErrDimensionMismatch
		require.ErrorAs(t, err, &dim)
		assert.Equal(t, 2, dim.Expected)
		assert.Equal(t, 3, dim.Actual)
	})

	t.Run("NoPartialMutation", func(t *testing.T) {
		ix := NewIndex("test", 2, MetricEuclidean)
		err := ix.Add([]int64{1, 2}, [][]float64{{1, 0}, {1, 0, 0}})
		require.Error(t, err)
		assert.Equal(t, 0, ix.Len())
		assert.False(t, ix.Contains(1))
	})

	t.Run("CallerSliceNotAliased", func(t *testing.T) {
		ix := NewIndex("test", 2, MetricEuclidean)
		vec := []float64{1, 0}
		require.NoError(t, ix.Add([]int64{1}, [][]float64{vec}))
		vec[0] = 99

		hits, err := ix.Search([]float64{1, 0}, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Zero(t, hits[0].Distance)
	})
}

func TestIndexSearch(t *testing.T) {
	t.Run("InvalidK", func(t *testing.T) {
		ix := NewIndex("test", 2, MetricEuclidean)
		_, err := ix.Search([]float64{1, 0}, 0)
		require.ErrorIs(t, err, ErrInvalidK)
	})

	t.Run("QueryDimensionMismatch", func(t *testing.T) {
		ix := NewIndex("test", 2, MetricEuclidean)
		_, err := ix.Search([]float64{1}, 3)
		var dim *ErrDimensionMismatch
		require.ErrorAs(t, err, &dim)
	})

	t.Run("EuclideanSelfDistanceZero", func(t *testing.T) {
		ix := NewIndex("test", 2, MetricEuclidean)
		require.NoError(t, ix.Add(
			[]int64{1, 2, 3},
			[][]float64{{0, 0}, {3, 4}, {1, 0}},
		))

		hits, err := ix.Search([]float64{3, 4}, 3)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, int64(2), hits[0].ID)
		assert.Zero(t, hits[0].Distance)
		assert.Equal(t, int64(3), hits[1].ID)
		assert.Equal(t, int64(1), hits[2].ID)
	})

	t.Run("InnerProductRanksHighDotFirst", func(t *testing.T) {
		ix := NewIndex("test", 2, MetricInnerProduct)
		require.NoError(t, ix.Add(
			[]int64{1, 2, 3},
			[][]float64{{1, 0}, {0.5, 0.5}, {0, 1}},
		))

		hits, err := ix.Search([]float64{1, 0}, 3)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, int64(1), hits[0].ID)
		assert.InDelta(t, -1.0, hits[0].Distance, 1e-12)
		assert.Equal(t, int64(2), hits[1].ID)
		assert.Equal(t, int64(3), hits[2].ID)
	})

	t.Run("TruncatesToK", func(t *testing.T) {
		ix := NewIndex("test", 2, MetricEuclidean)
		require.NoError(t, ix.Add(
			[]int64{1, 2, 3, 4},
			[][]float64{{0, 0}, {1, 0}, {2, 0}, {3, 0}},
		))

		hits, err := ix.Search([]float64{0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, int64(1), hits[0].ID)
		assert.Equal(t, int64(2), hits[1].ID)
	})

	t.Run("EqualDistancesKeepInsertionOrder", func(t *testing.T) {
		ix := NewIndex("test", 2, MetricEuclidean)
		require.NoError(t, ix.Add(
			[]int64{7, 3},
			[][]float64{{1, 1}, {1, 1}},
		))

		hits, err := ix.Search([]float64{0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, int64(7), hits[0].ID)
		assert.Equal(t, int64(3), hits[1].ID)
	})

	t.Run("EmptyIndex", func(t *testing.T) {
		ix := NewIndex("test", 2, MetricEuclidean)
		hits, err := ix.Search([]float64{0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}
