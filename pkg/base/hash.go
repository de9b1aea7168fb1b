// Package base implements the hash-keyed core of the resource system: the
// four content-addressed stores, the resource-evaluation state machine, the
// two-queue scheduler, the generation counter, and the persistence bridge.
//
// Everything in this package corresponds to the "base" API of the original
// resource-system design: callers hand it opaque computation callbacks and
// byte blobs, never typed values. The typed, ergonomic layer that most users
// would actually reach for (wrapping native functions and arguments into a
// ComputationDescriptor) is intentionally not part of this package.
package base

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"reflect"
	"sync"
	"sync/atomic"
)

// Hash is a 128-bit content identifier. With 10^10 objects tracked, keeping
// only the first 128 bits of a SHA-1 digest still gives a collision
// probability around 10^-18 (see https://en.wikipedia.org/wiki/Birthday_problem).
type Hash [16]byte

// String returns the full lowercase hex representation.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Short returns an 8-hex-digit bracketed prefix, useful in log lines
// (mirrors the original's colorized `shorthash` debug helper, minus the
// embedded ANSI escapes since a structured logger owns presentation here).
func (h Hash) Short() string { return "[" + hex.EncodeToString(h[:4]) + "]" }

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// CompHash identifies a computation: an algorithm plus, optionally, a type
// signature. Two computations with equal CompHash are treated as the same
// algorithm.
type CompHash Hash

func (h CompHash) String() string { return Hash(h).String() }
func (h CompHash) Short() string  { return Hash(h).Short() }

// ResHash identifies a resource: a computation applied to an ordered list of
// argument resources. It is the "name" of a node in the DAG.
type ResHash Hash

func (h ResHash) String() string { return Hash(h).String() }
func (h ResHash) Short() string  { return Hash(h).Short() }

// ContentHash identifies the bytes (or error, or runtime-only hash) produced
// by evaluating a resource.
type ContentHash Hash

func (h ContentHash) String() string { return Hash(h).String() }
func (h ContentHash) Short() string  { return Hash(h).Short() }

// InvocHash identifies one invocation: a computation plus the content hashes
// of its arguments. It is the cache key from invocation to content.
type InvocHash Hash

func (h InvocHash) String() string { return Hash(h).String() }
func (h InvocHash) Short() string  { return Hash(h).Short() }

// TypeHash identifies a runtime-representation type, derived once from a
// stable type name and cached per Go type via TypeHashOf.
type TypeHash Hash

func (h TypeHash) String() string { return Hash(h).String() }
func (h TypeHash) Short() string  { return Hash(h).Short() }

// sha1Builder accumulates byte spans and finalizes them into a truncated
// 128-bit Hash. Every hash in this package is domain-separated: the caller
// is responsible for feeding a fixed, documented field order (and, for
// content hashes, a leading case discriminator - see makeContentHash).
type sha1Builder struct {
	h hash.Hash
}

func newSha1Builder() *sha1Builder {
	return &sha1Builder{h: sha1.New()}
}

func (b *sha1Builder) add(p []byte) *sha1Builder {
	// sha1.Hash.Write never returns an error.
	_, _ = b.h.Write(p)
	return b
}

func (b *sha1Builder) addUint32(v uint32) *sha1Builder {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return b.add(buf[:])
}

func (b *sha1Builder) addUint64(v uint64) *sha1Builder {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return b.add(buf[:])
}

func (b *sha1Builder) finalize() Hash {
	var digest [20]byte
	b.h.Sum(digest[:0])
	var out Hash
	copy(out[:], digest[:16])
	return out
}

func finalizeComp(b *sha1Builder) CompHash       { return CompHash(b.finalize()) }
func finalizeRes(b *sha1Builder) ResHash         { return ResHash(b.finalize()) }
func finalizeContent(b *sha1Builder) ContentHash { return ContentHash(b.finalize()) }
func finalizeInvoc(b *sha1Builder) InvocHash     { return InvocHash(b.finalize()) }
func finalizeType(b *sha1Builder) TypeHash       { return TypeHash(b.finalize()) }
func finalizeHash(b *sha1Builder) Hash           { return b.finalize() }

// makeTypeHashFromName derives a TypeHash from a stable type name.
func makeTypeHashFromName(name string) TypeHash {
	return finalizeType(newSha1Builder().add([]byte(name)))
}

var (
	typeHashCacheMu sync.Mutex
	typeHashCache   = map[reflect.Type]TypeHash{}
)

// TypeHashOf returns a cached TypeHash for T, derived from its reflected
// type name the same way the original derives it from typeid(T).name().
func TypeHashOf[T any]() TypeHash {
	var zero T
	t := reflect.TypeOf(zero)
	name := "<nil>"
	if t != nil {
		name = t.PkgPath() + "." + t.Name()
	}

	typeHashCacheMu.Lock()
	defer typeHashCacheMu.Unlock()
	if t != nil {
		if h, ok := typeHashCache[t]; ok {
			return h
		}
	}
	h := makeTypeHashFromName(name)
	if t != nil {
		typeHashCache[t] = h
	}
	return h
}

// randomHashState is the entropy chain behind MakeRandomUniqueHash: every
// call folds the previous hash, a monotonic counter, and fresh crypto/rand
// bytes into the next one. Go has no portable equivalent of the original's
// rdtsc/thread-id mix, so crypto/rand stands in as the extra entropy source.
var (
	randomHashMu    sync.Mutex
	randomHashPrev  = makeTypeHashFromName("globally unique random hash seed")
	randomHashCount uint64
)

// MakeRandomUniqueHash returns a hash that is unique for all practical
// purposes, used to name anonymous/volatile computations that must never
// collide with a user-declared one.
func MakeRandomUniqueHash() Hash {
	randomHashMu.Lock()
	defer randomHashMu.Unlock()

	var entropy [16]byte
	_, _ = rand.Read(entropy[:])

	b := newSha1Builder().
		add(randomHashPrev[:]).
		addUint64(randomHashCount).
		add(entropy[:])
	h := finalizeHash(b)

	randomHashPrev = TypeHash(h)
	randomHashCount++

	return h
}

// MakeRandomUniqueCompHash is a convenience wrapper for the common case of
// minting an anonymous CompHash (e.g. for volatile or "runtime" nodes).
func MakeRandomUniqueCompHash() CompHash { return CompHash(MakeRandomUniqueHash()) }

// generationCounter is a monotonically increasing atomic int used for O(1)
// invalidation of the in-memory resource cache (see system.go). It starts at
// 1000, matching the original, purely so early debugging never confuses a
// generation value with a small loop counter.
type generationCounter struct {
	v atomic.Int64
}

func newGenerationCounter() *generationCounter {
	g := &generationCounter{}
	g.v.Store(1000)
	return g
}

func (g *generationCounter) load() int64      { return g.v.Load() }
func (g *generationCounter) incrementAndGet() { g.v.Add(1) }
