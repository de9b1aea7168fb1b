package base

import (
	"sync/atomic"
	"time"
)

// Content-hash case discriminators (§4.2). Kept as their own uint32 values
// (rather than an iota-based enum) because the exact numbers are part of
// the domain-separation contract - if they ever collided with a
// differently-cased hash's discriminator, two unrelated content values
// could hash identically.
const (
	contentCaseSerialized    uint32 = 1000
	contentCaseError         uint32 = 2000
	contentCaseRuntimeHashed uint32 = 3000
	contentCaseRuntimeOpaque uint32 = 4000
)

var volatileNonceCounter atomic.Uint64

// nextVolatileNonce returns a value that, mixed with a high-resolution
// clock reading, is unique per invocation for volatile runtime-opaque
// content (§4.2: "a monotonic wall-clock reading is additionally mixed in
// so the hash is effectively unique per invocation").
func nextVolatileNonce() uint64 {
	return volatileNonceCounter.Add(1)*1_000_000_003 ^ uint64(time.Now().UnixNano())
}

// makeContentHash derives a ContentHash from a computation's result,
// following the four-case rule in §4.2 and the case-dependence rule in §3
// invariant 6:
//
//   - serialized result: depends only on the serialized bytes (case 1000).
//   - error result: depends only on the error message (case 2000).
//   - runtime-only result with a custom hasher: depends only on that
//     hasher's returned hash (case 3000).
//   - runtime-only result without a custom hasher: depends on invoc (and,
//     for volatile resources, additionally a per-invocation nonce)
//     (case 4000).
func makeContentHash(result ComputationResult, customHasher MakeRuntimeContentHashFunc, invoc InvocHash, isVolatile bool, nonce uint64) ContentHash {
	switch {
	case result.Serialized != nil:
		return finalizeContent(newSha1Builder().addUint32(contentCaseSerialized).add(result.Serialized.Blob))

	case result.Error != nil:
		return finalizeContent(newSha1Builder().addUint32(contentCaseError).add([]byte(result.Error.Message)))

	case len(result.RuntimeData) > 0 && customHasher != nil:
		custom := Hash(customHasher(result.RuntimeData[0].Data))
		return finalizeContent(newSha1Builder().addUint32(contentCaseRuntimeHashed).add(custom[:]))

	default:
		b := newSha1Builder().addUint32(contentCaseRuntimeOpaque).add(invoc[:])
		if isVolatile {
			b.addUint64(nonce)
		}
		return finalizeContent(b)
	}
}
