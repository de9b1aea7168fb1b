package base

import "sync/atomic"

// ComputationDescriptor identifies an algorithm (§3). CompHash is derived
// from AlgoHash and TypeHash only; Name never participates in hashing - it
// is a human-readable label carried with the descriptor, which the engine
// itself never reads (see SPEC_FULL.md §C.1, ported from the original's
// named `res::node`).
type ComputationDescriptor struct {
	// AlgoHash mandatorily identifies the code/algorithm, including its
	// version. Caller-provided.
	AlgoHash Hash

	// TypeHash optionally differentiates instantiations of a generic
	// algorithm over different argument/result types. Zero means "not
	// used".
	TypeHash Hash

	// Compute runs the algorithm given already-resolved argument content.
	Compute ComputeFunc

	// Deserialize optionally decodes a serialized blob into a typed
	// runtime form. Evaluation does not read this field: the runtime
	// representation a resource's ContentRef carries is chosen by
	// ResourceDescriptor.Deserialize.
	Deserialize DeserializeFunc

	// MakeRuntimeContentHash optionally derives a ContentHash from a
	// runtime-only payload (case 3000 in §4.2).
	MakeRuntimeContentHash MakeRuntimeContentHashFunc

	// Name is a label for callers; the engine neither logs nor hashes it,
	// and it never participates in CompHash.
	Name string
}

func (d ComputationDescriptor) hash() CompHash {
	return finalizeComp(newSha1Builder().add(d.AlgoHash[:]).add(d.TypeHash[:]))
}

// sameIdentity reports whether two descriptors that hashed to the same
// CompHash actually agree on the fields that fed the hash. A mismatch here
// under equal hashes would mean a SHA-1 collision or, far more likely,
// stale caller state - it is the redefinition diagnostic from spec.md §7.
func (d ComputationDescriptor) sameIdentity(other ComputationDescriptor) bool {
	return d.AlgoHash == other.AlgoHash && d.TypeHash == other.TypeHash
}

// ResourceDescriptor identifies one DAG node (§3): a computation applied to
// an ordered list of argument resources.
type ResourceDescriptor struct {
	Computation CompHash
	Args        []ResHash

	// IsVolatile marks content that may change whenever the generation
	// counter advances; the invocation cache is always bypassed for it.
	IsVolatile bool

	// IsPersisted marks content and invocation mapping as eligible for
	// durable storage. Mutually exclusive with IsVolatile (§3, §7).
	IsPersisted bool

	Deserialize DeserializeFunc
}

func (d ResourceDescriptor) hash(comp CompHash) ResHash {
	b := newSha1Builder().add(comp[:])
	for _, a := range d.Args {
		b.add(a[:])
	}
	return finalizeRes(b)
}

func (d ResourceDescriptor) sameIdentity(other ResourceDescriptor) bool {
	if d.Computation != other.Computation || d.IsVolatile != other.IsVolatile || d.IsPersisted != other.IsPersisted {
		return false
	}
	if len(d.Args) != len(other.Args) {
		return false
	}
	for i := range d.Args {
		if d.Args[i] != other.Args[i] {
			return false
		}
	}
	return true
}

// RefCount is the external reference counter every defined resource carries
// (§3: "a pointer to an external-reference counter initialized to 1", §4.3:
// "an integer reference count at offset 0, atomically mutated"). It is
// allocated once per resource and never moves, matching the pointer
// stability spec.md §9 requires for slots.
type RefCount struct {
	v atomic.Int64
}

func newRefCount() *RefCount {
	rc := &RefCount{}
	rc.v.Store(1)
	return rc
}

// Inc atomically increments the count (a handle was copied).
func (r *RefCount) Inc() { r.v.Add(1) }

// Dec atomically decrements the count (a handle was dropped) and returns
// the resulting value.
func (r *RefCount) Dec() int64 { return r.v.Add(-1) }

// Load returns the current count.
func (r *RefCount) Load() int64 { return r.v.Load() }
