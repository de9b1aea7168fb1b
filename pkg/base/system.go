package base

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrHashCollision is the diagnostic raised when a computation or resource
// is redefined under the same hash but with different fields (§7: "hash
// collision or stale caller state").
var ErrHashCollision = errors.New("resourcesystem: redefinition with differing fields under the same hash")

// ErrPersistedVolatile is the diagnostic raised when a resource descriptor
// requests both IsPersisted and IsVolatile (§3, §7).
var ErrPersistedVolatile = errors.New("resourcesystem: a resource cannot be both persisted and volatile")

// ErrUnknownComputation indicates a resource references a CompHash that was
// never defined (§7: "indicates premature GC" in the source system; here it
// simply means the caller passed a bad hash or defined resources out of
// order).
var ErrUnknownComputation = errors.New("resourcesystem: resource references an undefined computation")

// resourceCacheRecord is the per-ResHash in-memory cache entry (§3).
type resourceCacheRecord struct {
	desc ResourceDescriptor

	contentGen  int64 // -1 => never computed
	contentName ContentHash
	contentData *ContentRef // nil unless cached at contentGen

	enqueuedForNameGen    int64
	enqueuedForContentGen int64

	refCount *RefCount
	slot     *resourceSlot
}

// invocationRecord is the per-InvocHash entry (§3).
type invocationRecord struct {
	content     ContentHash
	isPersisted bool
}

// contentProvider is a registered persistence fallback (§4.7).
type contentProvider func(ContentHash) (ComputationResult, bool)

// ResourceSystem is the hash-keyed core engine (§1-§7 THE CORE). It owns
// the four content-addressed stores, the two scheduler queues, the
// generation counter, and the persistence bridge. It is safe for
// concurrent use from any number of goroutines and, per spec.md §9, is
// meant to be instantiable multiple times (no hidden global state).
type ResourceSystem struct {
	logger *slog.Logger

	computations *Store[CompHash, ComputationDescriptor]
	resources    *Store[ResHash, *resourceCacheRecord]
	content      *Store[ContentHash, *contentRecord]
	invocations  *Store[InvocHash, invocationRecord]

	hashQueue    *workQueue
	contentQueue *workQueue

	gen *generationCounter

	providersMu sync.RWMutex
	providers   []contentProvider

	// MaxProcessAllIterations bounds process_all's drive loop (§4.4,
	// SPEC_FULL.md §C.3). Zero means "use the default of 1000".
	MaxProcessAllIterations int
}

// Option configures a ResourceSystem at construction time.
type Option func(*ResourceSystem)

// WithLogger overrides the default logger (slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *ResourceSystem) { s.logger = l }
}

// WithMaxProcessAllIterations sets the process_all safety bound.
func WithMaxProcessAllIterations(n int) Option {
	return func(s *ResourceSystem) { s.MaxProcessAllIterations = n }
}

// New constructs an empty ResourceSystem with its generation counter at the
// initial value of 1000 (§4.6).
func New(opts ...Option) *ResourceSystem {
	s := &ResourceSystem{
		logger:       slog.Default(),
		computations: newStore[CompHash, ComputationDescriptor](),
		resources:    newStore[ResHash, *resourceCacheRecord](),
		content:      newStore[ContentHash, *contentRecord](),
		invocations:  newStore[InvocHash, invocationRecord](),
		hashQueue:    newWorkQueue(),
		contentQueue: newWorkQueue(),
		gen:          newGenerationCounter(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *ResourceSystem) currentGeneration() int64 { return s.gen.load() }

// InvalidateVolatileResources bumps the generation counter (§4.6). O(1):
// content and invocation stores are untouched, only the ResHash ->
// ContentHash binding held by each cache record becomes stale.
func (s *ResourceSystem) InvalidateVolatileResources() {
	s.gen.incrementAndGet()
}

// IsUpToDate reports whether gen is still current (the O(1) hot-path check
// behind Handle.TryGet, §4.3).
func (s *ResourceSystem) IsUpToDate(gen int64) bool {
	return gen >= s.currentGeneration()
}

// DefineComputation registers desc and returns its CompHash. Redefinition
// with identical AlgoHash/TypeHash is idempotent; redefinition with
// differing fields under the same hash is logged as a recoverable
// inconsistency and the original descriptor is kept (§7: "inconsistent
// algo_hash/type_hash on computation redefinition" is a recoverable local
// condition, not fatal, unlike the resource case below).
func (s *ResourceSystem) DefineComputation(desc ComputationDescriptor) CompHash {
	h := desc.hash()
	existing, inserted := s.computations.SetIfNew(h, func() ComputationDescriptor { return desc })
	if !inserted && !existing.sameIdentity(desc) {
		s.logger.Warn("computation redefined with inconsistent fields",
			slog.String("comp_hash", Hash(h).String()))
	}
	return h
}

// DefineResource registers desc and returns its ResHash plus a pointer to
// its external reference counter (§3, §6). Redefining with identical
// fields is idempotent and returns the existing RefCount, incrementing it.
// Redefining with differing fields under a colliding hash is a fatal
// diagnostic (programmer error, per §7).
func (s *ResourceSystem) DefineResource(desc ResourceDescriptor) (ResHash, *RefCount) {
	if desc.IsPersisted && desc.IsVolatile {
		panic(fmt.Errorf("%w: comp=%s", ErrPersistedVolatile, desc.Computation))
	}
	if _, ok := s.computations.Lookup(desc.Computation); !ok {
		panic(fmt.Errorf("%w: comp=%s", ErrUnknownComputation, desc.Computation))
	}

	h := desc.hash(desc.Computation)

	var rec *resourceCacheRecord
	s.resources.ModifyMany(func(m map[ResHash]*resourceCacheRecord) {
		if existing, ok := m[h]; ok {
			if !existing.desc.sameIdentity(desc) {
				panic(fmt.Errorf("%w: res=%s", ErrHashCollision, Hash(h).String()))
			}
			existing.refCount.Inc()
			rec = existing
			return
		}
		rc := newRefCount()
		rec = &resourceCacheRecord{
			desc:                  desc,
			contentGen:            -1,
			enqueuedForNameGen:    -1,
			enqueuedForContentGen: -1,
			refCount:              rc,
		}
		rec.slot = newResourceSlot(s, h, rc)
		m[h] = rec
	})
	return h, rec.refCount
}

// AcquireHandle returns an external Handle over res, sharing its RefCount
// (§6). The caller must have already defined res.
func AcquireHandle[T any](s *ResourceSystem, res ResHash) (Handle[T], bool) {
	rec, ok := s.resources.Lookup(res)
	if !ok {
		return Handle[T]{}, false
	}
	rec.refCount.Inc()
	return newHandle[T](rec.slot), true
}

// TryGetResourceContent implements the query described in §4.4. When
// enqueue is true (the default per §6) and the content is not already
// fresh, the resource is scheduled for computation on the content-needed
// queue.
func (s *ResourceSystem) TryGetResourceContent(res ResHash, enqueue bool) (ContentRef, bool, bool) {
	return s.tryGetResourceContentInternal(res, enqueue)
}

func (s *ResourceSystem) tryGetResourceContentInternal(res ResHash, enqueue bool) (ContentRef, bool, bool) {
	currentGen := s.currentGeneration()

	var (
		ref         ContentRef
		found       bool
		outdated    bool
		needEnqueue bool
	)

	exists := s.resources.Get(res, func(rec *resourceCacheRecord) {
		if rec.contentGen == currentGen && rec.contentData != nil {
			ref = *rec.contentData
			found = true
			return
		}
		if rec.enqueuedForContentGen != currentGen {
			needEnqueue = true
		}
		if rec.contentData != nil {
			ref = *rec.contentData
			ref.IsOutdated = true
			found = true
			outdated = true
		}
	})
	if !exists {
		return ContentRef{}, false, false
	}

	if needEnqueue && enqueue {
		s.resources.Modify(res, func(rec **resourceCacheRecord) {
			r := *rec
			if r.enqueuedForContentGen != currentGen {
				r.enqueuedForContentGen = currentGen
				s.contentQueue.push(res)
			}
		})
	}

	return ref, found, outdated
}

// TryGetResourceContentHash implements the identity-only query from §4.4.
func (s *ResourceSystem) TryGetResourceContentHash(res ResHash, enqueue bool) (ContentHash, bool) {
	currentGen := s.currentGeneration()

	var (
		hash          ContentHash
		found         bool
		needEnqueue   bool
		recordMissing bool
	)

	if !s.resources.Get(res, func(rec *resourceCacheRecord) {
		if rec.contentGen == currentGen {
			hash = rec.contentName
			found = true
			return
		}
		if rec.enqueuedForNameGen != currentGen && rec.enqueuedForContentGen != currentGen {
			needEnqueue = true
		}
	}) {
		recordMissing = true
	}
	if recordMissing {
		return ContentHash{}, false
	}

	if needEnqueue && enqueue {
		s.resources.Modify(res, func(rec **resourceCacheRecord) {
			r := *rec
			if r.enqueuedForNameGen != currentGen && r.enqueuedForContentGen != currentGen {
				r.enqueuedForNameGen = currentGen
				s.hashQueue.push(res)
			}
		})
	}

	return hash, found
}
