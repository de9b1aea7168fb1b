package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashStringAndShort(t *testing.T) {
	var h Hash
	h[0] = 0xab
	h[1] = 0xcd
	require.Len(t, h.String(), 32)
	require.Equal(t, "abcd0000000000000000000000000000", h.String())
	assert.Equal(t, "[abcd0000]", h.Short())
	assert.False(t, h.IsZero())
	assert.True(t, Hash{}.IsZero())
}

func TestDistinctHashKindsAreDistinctTypes(t *testing.T) {
	var raw Hash
	raw[0] = 1
	comp := CompHash(raw)
	res := ResHash(raw)
	// Same underlying bytes and the same hex form, but distinct Go types:
	// as interface values they do not compare equal.
	assert.Equal(t, comp.String(), res.String())
	assert.NotEqual(t, comp, res)
}

func TestTypeHashOfIsStableAndCached(t *testing.T) {
	a := TypeHashOf[int]()
	b := TypeHashOf[int]()
	assert.Equal(t, a, b)

	c := TypeHashOf[string]()
	assert.NotEqual(t, a, c)
}

func TestMakeRandomUniqueHashNeverRepeats(t *testing.T) {
	seen := map[Hash]bool{}
	for i := 0; i < 1000; i++ {
		h := MakeRandomUniqueHash()
		require.False(t, seen[h], "random hash repeated at iteration %d", i)
		seen[h] = true
	}
}

func TestMakeRandomUniqueCompHash(t *testing.T) {
	a := MakeRandomUniqueCompHash()
	b := MakeRandomUniqueCompHash()
	assert.NotEqual(t, a, b)
}

func TestGenerationCounterStartsAt1000AndIncrements(t *testing.T) {
	g := newGenerationCounter()
	assert.EqualValues(t, 1000, g.load())
	g.incrementAndGet()
	assert.EqualValues(t, 1001, g.load())
}
