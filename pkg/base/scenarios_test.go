package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// This file ports the six literal scenarios from spec.md §8 as executable
// tests, one function per scenario, using the "add" and "const" fixtures
// defined in testutil_test.go.

func TestScenario1_BasicDefineCompute(t *testing.T) {
	s := New()
	add := newAddComputation(s, nil)
	c3 := newConstComputation(s, 3.0)
	_ = defineResource(s, c3)

	r1 := defineResource(s, add, defineResource(s, newConstComputation(s, 1.0)), defineResource(s, newConstComputation(s, 2.0)))

	_, ok, _ := s.TryGetResourceContent(r1, true)
	assert.False(t, ok)

	s.ProcessAll()

	ref, ok, _ := s.TryGetResourceContent(r1, true)
	require.True(t, ok)
	assert.Equal(t, 3.0, ref.Data)
}

func TestScenario2_SharedSubresult(t *testing.T) {
	s := New()
	add := newAddComputation(s, nil)
	c1 := defineResource(s, newConstComputation(s, 1.0))
	c2 := defineResource(s, newConstComputation(s, 2.0))
	c3 := defineResource(s, newConstComputation(s, 3.0))
	c5 := defineResource(s, newConstComputation(s, 5.0))

	r0 := defineResource(s, add, c1, c2)          // 3
	r1 := defineResource(s, add, r0, c5)          // 8
	r2 := defineResource(s, add, r0, r1)          // 11
	r3 := defineResource(s, add, r2, r2)          // 22
	r4 := defineResource(s, add, c3, r3)          // 25

	s.TryGetResourceContent(r4, true)
	s.ProcessAll()

	expect := map[ResHash]float64{r0: 3, r1: 8, r2: 11, r3: 22, r4: 25}
	for res, want := range expect {
		ref, ok, _ := s.TryGetResourceContent(res, true)
		require.True(t, ok)
		assert.Equal(t, want, ref.Data)
	}
}

func TestScenario3_Volatile(t *testing.T) {
	s := New()
	external := 13
	algoHash := makeTypeHashFromName("scenario3-volatile")
	comp := s.DefineComputation(ComputationDescriptor{
		AlgoHash:    Hash(algoHash),
		Deserialize: decodeFloat64,
		Compute:     func(args []ContentRef) ComputationResult { return floatResult(float64(external)) },
	})
	v, _ := s.DefineResource(ResourceDescriptor{Computation: comp, IsVolatile: true, Deserialize: decodeFloat64})

	s.TryGetResourceContent(v, true)
	s.ProcessAll()
	ref, ok, _ := s.TryGetResourceContent(v, true)
	require.True(t, ok)
	assert.Equal(t, 13.0, ref.Data)

	external = 19
	ref, ok, _ = s.TryGetResourceContent(v, false)
	require.True(t, ok)
	assert.Equal(t, 13.0, ref.Data, "without invalidate_volatile, the stale value must still be observed")

	s.InvalidateVolatileResources()
	s.TryGetResourceContent(v, true)
	s.ProcessAll()
	ref, ok, _ = s.TryGetResourceContent(v, true)
	require.True(t, ok)
	assert.Equal(t, 19.0, ref.Data)
}

func TestScenario4_InvocationCacheHit(t *testing.T) {
	s := New()
	invocations := 0
	identity := newIdentityComputation(s, &invocations)
	add := newAddComputation(s, nil)

	c3 := defineResource(s, newConstComputation(s, 3.0))
	r0 := defineResource(s, add, defineResource(s, newConstComputation(s, 1.0)), defineResource(s, newConstComputation(s, 2.0)))

	r0f := defineResource(s, identity, c3)
	r1f := defineResource(s, identity, r0)

	s.TryGetResourceContent(r0f, true)
	s.ProcessAll()
	s.TryGetResourceContent(r1f, true)
	s.ProcessAll()

	assert.Equal(t, 1, invocations)
}

func TestScenario5_ErrorPropagation(t *testing.T) {
	s := New()
	invocations := 0
	algoHash := makeTypeHashFromName("scenario5-error")
	comp := s.DefineComputation(ComputationDescriptor{
		AlgoHash: Hash(algoHash),
		Compute: func(args []ContentRef) ComputationResult {
			invocations++
			return ComputationResult{Error: &ErrorData{Message: "computation failed"}}
		},
	})
	r := defineResource(s, comp)

	s.TryGetResourceContent(r, true)
	s.ProcessAll()

	ref, ok, _ := s.TryGetResourceContent(r, true)
	require.True(t, ok)
	assert.True(t, ref.HasError())
	assert.Equal(t, "computation failed", ref.ErrorMsg)

	s.TryGetResourceContent(r, true)
	s.ProcessAll()
	assert.Equal(t, 1, invocations)
}

func TestScenario6_PersistenceRoundTrip(t *testing.T) {
	invocations := 0
	src := New()
	add := newAddComputation(src, &invocations)
	arg1 := defineResource(src, newConstComputation(src, 1.0))
	arg2 := defineResource(src, newConstComputation(src, 2.0))
	r, _ := src.DefineResource(ResourceDescriptor{Computation: add, Args: []ResHash{arg1, arg2}, Deserialize: decodeFloat64, IsPersisted: true})

	src.TryGetResourceContent(r, true)
	src.ProcessAll()
	require.Equal(t, 1, invocations)

	ref, ok, _ := src.TryGetResourceContent(r, true)
	require.True(t, ok)

	pairs := src.CollectAllPersistentInvocations(map[InvocHash]struct{}{})
	require.Len(t, pairs, 1)
	require.Equal(t, ref.Hash, pairs[0].Content)
	contents := src.CollectAllPersistentContent([]ContentHash{ref.Hash})
	require.Len(t, contents, 1)

	dst := New()
	addDst := newAddComputation(dst, &invocations)
	arg1Dst := defineResource(dst, newConstComputation(dst, 1.0))
	arg2Dst := defineResource(dst, newConstComputation(dst, 2.0))
	rDst, _ := dst.DefineResource(ResourceDescriptor{Computation: addDst, Args: []ResHash{arg1Dst, arg2Dst}, Deserialize: decodeFloat64, IsPersisted: true})
	require.Equal(t, r, rDst)

	dst.InjectInvocCache(pairs)
	dst.content.Set(ref.Hash, newContentRecord(ComputationResult{Serialized: &SerializedData{Blob: contents[0].Serialized}}))

	dst.TryGetResourceContent(rDst, true)
	dst.ProcessAll()

	got, ok, _ := dst.TryGetResourceContent(rDst, true)
	require.True(t, ok)
	assert.Equal(t, 3.0, got.Data)
	assert.Equal(t, 1, invocations, "compute_resource must never be invoked on the destination engine")
}
