package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefineComputationIsIdempotent(t *testing.T) {
	s := New()
	desc := ComputationDescriptor{AlgoHash: makeTypeHashFromName_forTest("algo"), Compute: func(args []ContentRef) ComputationResult { return floatResult(0) }}

	h1 := s.DefineComputation(desc)
	h2 := s.DefineComputation(desc)
	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, s.computations.Len())
}

func makeTypeHashFromName_forTest(name string) Hash {
	return Hash(makeTypeHashFromName(name))
}

func TestDefineResourceIsIdempotentAndIncrementsRefCount(t *testing.T) {
	s := New()
	comp := newConstComputation(s, 42.0)

	r1, rc1 := s.DefineResource(ResourceDescriptor{Computation: comp})
	assert.EqualValues(t, 1, rc1.Load())

	r2, rc2 := s.DefineResource(ResourceDescriptor{Computation: comp})
	assert.Equal(t, r1, r2)
	assert.Same(t, rc1, rc2)
	assert.EqualValues(t, 2, rc1.Load())
}

func TestDefineResourceDistinctComputationsProduceDistinctHashes(t *testing.T) {
	s := New()
	comp := newConstComputation(s, 1.0)
	other := newConstComputation(s, 2.0)

	r1, _ := s.DefineResource(ResourceDescriptor{Computation: comp})
	r2, _ := s.DefineResource(ResourceDescriptor{Computation: other})
	assert.NotEqual(t, r1, r2)
}

func TestDefineResourcePersistedAndVolatilePanics(t *testing.T) {
	s := New()
	comp := newConstComputation(s, 1.0)
	assert.Panics(t, func() {
		s.DefineResource(ResourceDescriptor{Computation: comp, IsVolatile: true, IsPersisted: true})
	})
}

func TestDefineResourceUnknownComputationPanics(t *testing.T) {
	s := New()
	var bogus CompHash
	bogus[0] = 1
	assert.Panics(t, func() {
		s.DefineResource(ResourceDescriptor{Computation: bogus})
	})
}

func TestInvalidateVolatileResourcesBumpsGeneration(t *testing.T) {
	s := New()
	before := s.currentGeneration()
	s.InvalidateVolatileResources()
	assert.Equal(t, before+1, s.currentGeneration())
}

func TestIsUpToDate(t *testing.T) {
	s := New()
	gen := s.currentGeneration()
	assert.True(t, s.IsUpToDate(gen))
	assert.False(t, s.IsUpToDate(gen-1))
}

func TestTryGetResourceContentHashUnknownResource(t *testing.T) {
	s := New()
	var bogus ResHash
	_, ok := s.TryGetResourceContentHash(bogus, true)
	require.False(t, ok)
}
