package base

// InvocContentPair is a durable (InvocHash -> ContentHash) mapping as
// exchanged with an external persistence layer (§4.7, §6 "Persisted
// formats").
type InvocContentPair struct {
	Invoc   InvocHash
	Content ContentHash
}

// ContentProviderFunc is a fallback lookup consulted when the in-memory
// content store misses a ContentHash (§4.7). It is invoked holding no
// engine lock.
type ContentProviderFunc func(ContentHash) (ComputationResult, bool)

// InjectInvocCache populates the invocation store from pairs, marking each
// entry IsPersisted = true. Injection is idempotent: re-injecting the same
// pairs in any order leaves the store in the same state (§6).
func (s *ResourceSystem) InjectInvocCache(pairs []InvocContentPair) {
	s.invocations.ModifyMany(func(m map[InvocHash]invocationRecord) {
		for _, p := range pairs {
			m[p.Invoc] = invocationRecord{content: p.Content, isPersisted: true}
		}
	})
}

// InjectContentProvider registers fn as an additional fallback content
// source, tried in registration order after the in-memory content store
// misses (§4.7). The first provider to hit has its result inserted into
// the content store via insert-if-new.
func (s *ResourceSystem) InjectContentProvider(fn ContentProviderFunc) {
	s.providersMu.Lock()
	defer s.providersMu.Unlock()
	s.providers = append(s.providers, contentProvider(fn))
}

// CollectAllPersistentInvocations returns every invocation marked
// IsPersisted whose InvocHash is not already present in known (§4.7).
func (s *ResourceSystem) CollectAllPersistentInvocations(known map[InvocHash]struct{}) []InvocContentPair {
	var out []InvocContentPair
	s.invocations.ReadMany(func(m map[InvocHash]invocationRecord) {
		for invoc, rec := range m {
			if !rec.isPersisted {
				continue
			}
			if _, seen := known[invoc]; seen {
				continue
			}
			out = append(out, InvocContentPair{Invoc: invoc, Content: rec.content})
		}
	})
	return out
}

// CollectAllPersistentContent returns a snapshot ContentRef for each
// requested hash that is present and serializable (has a serialized blob or
// an error message; non-serializable runtime-only content is never
// persisted, per §6). Hashes with no serializable record are omitted.
func (s *ResourceSystem) CollectAllPersistentContent(hashes []ContentHash) []ContentRef {
	out := make([]ContentRef, 0, len(hashes))
	for _, h := range hashes {
		rec, ok := s.content.Lookup(h)
		if !ok {
			continue
		}
		snap := rec.snapshot()
		if !snap.HasSerializableData() {
			continue
		}
		ref := ContentRef{Hash: h}
		if snap.Error != nil {
			ref.ErrorMsg = snap.Error.Message
		} else if snap.Serialized != nil {
			ref.Serialized = snap.Serialized.Blob
		}
		out = append(out, ref)
	}
	return out
}
