package base

import (
	"encoding/binary"
	"math"
)

// The scenarios in spec.md §8 all revolve around a fixed "add" algorithm
// over float64 values, encoded as 8-byte little-endian blobs, plus a
// "const" algorithm that ignores its (empty) arguments and returns a baked
// -in value. These helpers build the ComputationDescriptors these tests
// share, so each test only has to describe its DAG shape.

func encodeFloat64(v float64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	return buf[:]
}

func decodeFloat64(blob []byte) any {
	return math.Float64frombits(binary.LittleEndian.Uint64(blob))
}

func floatResult(v float64) ComputationResult {
	return ComputationResult{Serialized: &SerializedData{Blob: encodeFloat64(v)}}
}

// newAddComputation registers the "add" algorithm (a fixed algo hash A per
// spec.md §8) on s and returns its CompHash. invocations, if non-nil, is
// incremented on every actual Compute call - used by scenario 4/6 to prove
// invocation-cache hits avoid recomputation.
func newAddComputation(s *ResourceSystem, invocations *int) CompHash {
	algoHash := makeTypeHashFromName("add")
	return s.DefineComputation(ComputationDescriptor{
		AlgoHash:    Hash(algoHash),
		Name:        "add",
		Deserialize: decodeFloat64,
		Compute: func(args []ContentRef) ComputationResult {
			if invocations != nil {
				*invocations++
			}
			a := args[0].Data.(float64)
			b := args[1].Data.(float64)
			return floatResult(a + b)
		},
	})
}

// newConstComputation registers a distinct "const" algorithm per literal
// value: the value is baked into AlgoHash via makeTypeHashFromName so that
// const(3.0) always resolves to the same CompHash across calls/tests.
func newConstComputation(s *ResourceSystem, value float64) CompHash {
	algoHash := makeTypeHashFromName("const")
	comp := s.DefineComputation(ComputationDescriptor{
		AlgoHash:    Hash(algoHash),
		TypeHash:    Hash(finalizeType(newSha1Builder().add(encodeFloat64(value)))),
		Name:        "const",
		Deserialize: decodeFloat64,
		Compute: func(args []ContentRef) ComputationResult {
			return floatResult(value)
		},
	})
	return comp
}

func newIdentityComputation(s *ResourceSystem, invocations *int) CompHash {
	algoHash := makeTypeHashFromName("identity")
	return s.DefineComputation(ComputationDescriptor{
		AlgoHash:    Hash(algoHash),
		Name:        "identity",
		Deserialize: decodeFloat64,
		Compute: func(args []ContentRef) ComputationResult {
			if invocations != nil {
				*invocations++
			}
			return floatResult(args[0].Data.(float64))
		},
	})
}

func defineResource(s *ResourceSystem, comp CompHash, args ...ResHash) ResHash {
	h, _ := s.DefineResource(ResourceDescriptor{Computation: comp, Args: args, Deserialize: decodeFloat64})
	return h
}
