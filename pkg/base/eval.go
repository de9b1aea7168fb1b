package base

import "log/slog"

// defaultMaxProcessAllIterations is the fallback safety bound for ProcessAll
// (§4.4, SPEC_FULL.md §C.3), matching the original's hardcoded value.
const defaultMaxProcessAllIterations = 1000

// ProcessAll drains both scheduler queues to empty (§4.4 "Process-all").
// Each drain pass alternates: one hash-queue step, then one content-queue
// step, so a resource's dependency hashes are resolved before its content
// is computed within the same round. A configurable iteration cap prevents
// pathological requeue loops from spinning forever; exceeding it logs a
// warning rather than failing (§7: "process-all iteration cap reached" is a
// recoverable condition).
func (s *ResourceSystem) ProcessAll() {
	max := s.MaxProcessAllIterations
	if max <= 0 {
		max = defaultMaxProcessAllIterations
	}

	for i := 0; i < max; i++ {
		didHash := s.implProcessQueueRes(false)
		didContent := s.implProcessQueueRes(true)
		if !didHash && !didContent {
			return
		}
	}
	s.logger.Warn("process_all iteration cap reached",
		slog.Int("max_iterations", max))
}

// implProcessQueueRes processes one queued resource from the hash-only
// queue (needContent=false) or the content-needed queue (needContent=true),
// exactly per the ten-step algorithm in spec.md §4.4. Returns false only
// when the relevant queue was already empty.
func (s *ResourceSystem) implProcessQueueRes(needContent bool) bool {
	queue := s.hashQueue
	if needContent {
		queue = s.contentQueue
	}

	res, ok := queue.pop()
	if !ok {
		return false
	}

	currentGen := s.currentGeneration()

	// Step 2: read the descriptor and check whether this dequeue is
	// already stale (satisfied by a previous round).
	var (
		desc         ResourceDescriptor
		alreadyFresh bool
		recordFound  bool
	)
	recordFound = s.resources.Get(res, func(rec *resourceCacheRecord) {
		desc = rec.desc
		if rec.contentGen == currentGen {
			if !needContent || rec.contentData != nil {
				alreadyFresh = true
			}
		}
	})
	if !recordFound {
		// Resource was never defined (or has been GC'd, which this core
		// never does) - nothing to do.
		return true
	}
	if alreadyFresh {
		return true
	}

	// Step 3: resolve argument content hashes; requeue on any miss.
	argContentHashes := make([]ContentHash, len(desc.Args))
	for i, arg := range desc.Args {
		h, ok := s.TryGetResourceContentHash(arg, true)
		if !ok {
			queue.push(res)
			return true
		}
		argContentHashes[i] = h
	}

	// Step 4: invocation hash.
	invoc := computeInvocHash(desc.Computation, argContentHashes)

	// Step 5: invocation-cache consultation (bypassed for volatile).
	if !desc.IsVolatile {
		if invocRec, hit := s.invocations.Lookup(invoc); hit {
			if !needContent {
				s.updateResourceCacheHashOnly(res, currentGen, invocRec.content)
				return true
			}
			if rec, found := s.lookupContent(invocRec.content); found {
				ref := s.buildContentRef(invocRec.content, currentGen, false, rec, desc.Deserialize)
				s.updateResourceCacheWithContent(res, currentGen, invocRec.content, ref)
				return true
			}
			// fall through to step 6: recompute.
		}
	}

	// Step 6: materialize argument contents (non-outdated); requeue on any
	// miss or staleness.
	argContents := make([]ContentRef, len(desc.Args))
	for i, arg := range desc.Args {
		ref, ok, outdated := s.TryGetResourceContent(arg, true)
		if !ok || outdated {
			queue.push(res)
			return true
		}
		argContents[i] = ref
	}

	// Step 7: invoke the computation.
	compDesc, ok := s.computations.Lookup(desc.Computation)
	if !ok {
		s.logger.Error("resource references undefined computation during evaluation",
			slog.String("res_hash", Hash(res).String()))
		panic(ErrUnknownComputation)
	}
	result := compDesc.Compute(argContents)

	// Wall-clock nonce for volatile+runtime-only+no-hasher content
	// (§4.2 edge case); computed unconditionally but only mixed in by
	// makeContentHash when it actually applies.
	nonce := nextVolatileNonce()

	contentHash := makeContentHash(result, compDesc.MakeRuntimeContentHash, invoc, desc.IsVolatile, nonce)

	// Step 8: insert-if-new into the content store and pin a ContentRef in
	// the same critical section. This is the compound "insert if new AND
	// return a reference to the stored record" operation §4.1 requires be
	// atomic - two concurrent computations racing on the same ContentHash
	// must converge on one canonical record.
	var stored *contentRecord
	s.content.ModifyMany(func(m map[ContentHash]*contentRecord) {
		if existing, ok := m[contentHash]; ok {
			stored = existing
			return
		}
		stored = newContentRecord(result)
		m[contentHash] = stored
	})
	ref := s.buildContentRef(contentHash, currentGen, false, stored, desc.Deserialize)

	// Step 9: for non-volatile resources, always write the invocation
	// mapping (even if present); volatile resources never touch the
	// invocation store.
	if !desc.IsVolatile {
		s.invocations.Set(invoc, invocationRecord{content: contentHash, isPersisted: desc.IsPersisted})
	}

	// Step 10: update the resource cache record.
	s.updateResourceCacheWithContent(res, currentGen, contentHash, ref)

	return true
}

func (s *ResourceSystem) lookupContent(h ContentHash) (*contentRecord, bool) {
	if v, ok := s.content.Lookup(h); ok {
		return v, true
	}
	// §4.7: consult registered content providers in order; the first hit
	// is inserted into the content store.
	s.providersMu.RLock()
	providers := append([]contentProvider(nil), s.providers...)
	s.providersMu.RUnlock()

	for _, p := range providers {
		if result, ok := p(h); ok {
			var final *contentRecord
			s.content.ModifyMany(func(m map[ContentHash]*contentRecord) {
				if existing, present := m[h]; present {
					final = existing
					return
				}
				final = newContentRecord(result)
				m[h] = final
			})
			return final, true
		}
	}
	s.logger.Warn("content provider miss", slog.String("content_hash", Hash(h).String()))
	return nil, false
}

func (s *ResourceSystem) buildContentRef(h ContentHash, gen int64, outdated bool, rec *contentRecord, deserialize DeserializeFunc) ContentRef {
	ref := ContentRef{Hash: h, Generation: gen, IsOutdated: outdated}

	snap := rec.snapshot()
	if snap.Error != nil {
		ref.ErrorMsg = snap.Error.Message
		return ref
	}

	ref.Data = rec.dataFor(deserialize)
	if snap.Serialized != nil {
		ref.Serialized = snap.Serialized.Blob
	}
	return ref
}

func (s *ResourceSystem) updateResourceCacheHashOnly(res ResHash, gen int64, hash ContentHash) {
	s.resources.Modify(res, func(rec **resourceCacheRecord) {
		r := *rec
		r.contentGen = gen
		r.contentName = hash
		r.contentData = nil
	})
}

func (s *ResourceSystem) updateResourceCacheWithContent(res ResHash, gen int64, hash ContentHash, ref ContentRef) {
	s.resources.Modify(res, func(rec **resourceCacheRecord) {
		r := *rec
		r.contentGen = gen
		r.contentName = hash
		cp := ref
		r.contentData = &cp
	})
}

func computeInvocHash(comp CompHash, argContent []ContentHash) InvocHash {
	b := newSha1Builder().add(comp[:])
	for _, c := range argContent {
		b.add(c[:])
	}
	return finalizeInvoc(b)
}
