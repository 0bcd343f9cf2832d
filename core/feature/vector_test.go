package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLerp(t *testing.T) {
	a := []float64{0, 0, 4}
	b := []float64{2, 4, 0}

	t.Run("Endpoints", func(t *testing.T) {
		assert.Equal(t, a, Lerp(a, b, 0))
		assert.Equal(t, b, Lerp(a, b, 1))
	})

	t.Run("Midpoint", func(t *testing.T) {
		assert.InDeltaSlice(t, []float64{1, 2, 2}, Lerp(a, b, 0.5), 1e-12)
	})

	t.Run("InputsUntouched", func(t *testing.T) {
		_ = Lerp(a, b, 0.25)
		assert.Equal(t, []float64{0, 0, 4}, a)
		assert.Equal(t, []float64{2, 4, 0}, b)
	})
}

func TestStepToward(t *testing.T) {
	t.Run("PartialStep", func(t *testing.T) {
		got := StepToward([]float64{0, 0}, []float64{3, 4}, 2.5)
		assert.InDeltaSlice(t, []float64{1.5, 2}, got, 1e-12)
	})

	t.Run("OvershootAllowed", func(t *testing.T) {
		got := StepToward([]float64{0, 0}, []float64{1, 0}, 3)
		assert.InDeltaSlice(t, []float64{3, 0}, got, 1e-12)
	})

	t.Run("ZeroDistance", func(t *testing.T) {
		cur := []float64{1, 2}
		got := StepToward(cur, []float64{1, 2}, 5)
		assert.Equal(t, cur, got)
	})
}

func TestNormalizeDistribution(t *testing.T) {
	t.Run("SumsToOne", func(t *testing.T) {
		v := []float64{1, 3, 4}
		require.True(t, NormalizeDistribution(v))
		assert.InDeltaSlice(t, []float64{0.125, 0.375, 0.5}, v, 1e-12)
	})

	t.Run("NonPositiveSumRejected", func(t *testing.T) {
		v := []float64{0, 0, 0}
		require.False(t, NormalizeDistribution(v))
		assert.Equal(t, []float64{0, 0, 0}, v)
	})
}
