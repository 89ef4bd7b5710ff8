package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreivaldsVerify(t *testing.T) {
	backend := newTestCPUBackend(t)
	rng := NewRand(3)

	const m, k, n = 40, 30, 20
	a := RandomMatrix(rng, m, k)
	b := RandomMatrix(rng, k, n)
	c, err := backend.MatrixMultiply(a, b, m, k, n)
	require.NoError(t, err)

	t.Run("correct product", func(t *testing.T) {
		ok, err := FreivaldsVerify(a, b, c, m, k, n, 10, rng)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("corrupted product", func(t *testing.T) {
		bad := append([]float32(nil), c...)
		bad[5*n+7] += 10
		// A single corrupted cell escapes a round only when r picks a zero
		// at its column; 20 rounds make that vanishingly unlikely.
		ok, err := FreivaldsVerify(a, b, bad, m, k, n, 20, NewRand(11))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("small known product", func(t *testing.T) {
		ok, err := FreivaldsVerify(
			[]float32{1, 2, 3, 4},
			[]float32{5, 6, 7, 8},
			[]float32{19, 22, 43, 50},
			2, 2, 2, 5, rng)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("size mismatch", func(t *testing.T) {
		_, err := FreivaldsVerify(a, b, c[:10], m, k, n, 1, rng)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "matrix C size mismatch")

		_, err = FreivaldsVerify(a[:3], b, c, m, k, n, 1, rng)
		assert.Error(t, err)
	})
}
