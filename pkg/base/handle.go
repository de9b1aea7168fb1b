package base

// resourceSlot is the pointer-stable, heap-allocated cache record backing
// every defined resource (§4.3). It is never placed in a slice that could
// reallocate; the system always hands out *resourceSlot, and its lifetime
// is pinned by RefCount.
type resourceSlot struct {
	system *ResourceSystem
	res    ResHash

	// refCount sits logically "at offset 0" per spec.md §4.3; Go has no
	// portable notion of field offset semantics, so this is simply a
	// pointer to the same RefCount the resource's cache record owns,
	// atomically mutated by Handle copy/drop.
	refCount *RefCount

	// cached fields are only ever touched by the goroutine currently
	// holding a Handle to this slot's owning resource cache record in the
	// resource store; the authoritative state lives there (see system.go),
	// this is just the handle-local mirror used by the O(1) fast path.
	cached      ContentRef
	cachedValid bool
	cachedGen   int64
}

func newResourceSlot(system *ResourceSystem, res ResHash, refCount *RefCount) *resourceSlot {
	return &resourceSlot{system: system, res: res, refCount: refCount}
}

// isUpToDate is the O(1) hot-path freshness check from §4.3: a single
// gen >= current_gen comparison.
func (s *resourceSlot) isUpToDate() bool {
	return s.cachedValid && s.cachedGen >= s.system.currentGeneration()
}

// refresh consults the engine and updates the slot's cached fields,
// returning the (possibly outdated, possibly absent) content.
func (s *resourceSlot) refresh(enqueue bool) (ContentRef, bool) {
	ref, ok, outdated := s.system.tryGetResourceContentInternal(s.res, enqueue)
	if ok {
		s.cached = ref
		s.cachedValid = true
		s.cachedGen = ref.Generation
		_ = outdated
	}
	return ref, ok
}

// Handle is an opaque, ref-counted external handle over a resource (§4.3,
// §6). It is the exported analogue of the original's handle<T>: copying
// via Clone increments the slot's ref count, dropping (via Release)
// decrements it. A plain Go assignment of a Handle does not touch the count.
// Handle is not thread-pinned - it may be copied and released from any
// goroutine.
type Handle[T any] struct {
	slot *resourceSlot
}

// newHandle wraps slot, taking no additional reference (the caller already
// owns the +1 from resource definition).
func newHandle[T any](slot *resourceSlot) Handle[T] {
	return Handle[T]{slot: slot}
}

// Clone increments the reference count and returns a new Handle sharing the
// same slot, mirroring the original's handle copy semantics.
func (h Handle[T]) Clone() Handle[T] {
	if h.slot != nil {
		h.slot.refCount.Inc()
	}
	return Handle[T]{slot: h.slot}
}

// Release decrements the reference count. The core does not implement
// garbage collection (§9 Open Questions), so reaching zero currently has no
// observable effect beyond the counter itself.
func (h Handle[T]) Release() {
	if h.slot != nil {
		h.slot.refCount.Dec()
	}
}

// TryGet is the hot path (§4.3): checks is_up_to_date first and returns the
// cached ref without touching the engine if so; otherwise consults
// try_get_resource_content and refreshes the cache.
func (h Handle[T]) TryGet() (ContentRef, bool) {
	if h.slot == nil {
		return ContentRef{}, false
	}
	if h.slot.isUpToDate() {
		return h.slot.cached, true
	}
	return h.slot.refresh(true)
}

// ResHash returns the identity of the resource this handle points at.
func (h Handle[T]) ResHash() ResHash {
	if h.slot == nil {
		return ResHash{}
	}
	return h.slot.res
}

// RefCount exposes the live reference count for diagnostics/tests.
func (h Handle[T]) RefCount() int64 {
	if h.slot == nil {
		return 0
	}
	return h.slot.refCount.Load()
}
