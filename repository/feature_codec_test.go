package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloatBlobCodec(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		in := []float64{0, 1, -1, 0.5, 123.25}
		buf := encodeFloats(in)
		require.Len(t, buf, 4*len(in))

		out, err := decodeFloats(buf)
		require.NoError(t, err)
		require.Len(t, out, len(in))
		// Values representable as float32 survive exactly.
		assert.Equal(t, in, out)
	})

	t.Run("Float32Precision", func(t *testing.T) {
		in := []float64{0.1, 1.0 / 3.0}
		out, err := decodeFloats(encodeFloats(in))
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.InDelta(t, in[0], out[0], 1e-7)
		assert.InDelta(t, in[1], out[1], 1e-7)
	})

	t.Run("EmptyBuffer", func(t *testing.T) {
		out, err := decodeFloats(nil)
		require.NoError(t, err)
		assert.Nil(t, out)

		out, err = decodeFloats([]byte{})
		require.NoError(t, err)
		assert.Nil(t, out)

		assert.Empty(t, encodeFloats(nil))
	})

	t.Run("TruncatedBuffer", func(t *testing.T) {
		buf := encodeFloats([]float64{1, 2, 3})
		_, err := decodeFloats(buf[:len(buf)-1])
		require.Error(t, err)
		assert.Contains(t, err.Error(), "corrupt feature blob")
	})
}
