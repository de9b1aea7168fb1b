package base

import (
	"reflect"
	"sync"
)

// contentRecord is the in-memory representation of a ContentRecord (§3,
// §4.5): a ComputationResult whose set of typed runtime representations may
// grow via lazy deserialization, guarded by its own mutex so that growing
// it never requires holding the content store's lock. The record's byte
// identity (serialized blob / error message) never changes after
// insertion - only RuntimeData may be appended to.
type contentRecord struct {
	mu     sync.Mutex
	result ComputationResult
}

func newContentRecord(result ComputationResult) *contentRecord {
	return &contentRecord{result: result}
}

func samePointer(a, b DeserializeFunc) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// dataFor returns the typed runtime representation tagged by deserialize,
// lazily invoking deserialize on the serialized blob and appending the
// result if it is not already present (§4.5). If deserialize is nil, it
// returns whichever runtime representation (if any) is already cached.
func (r *contentRecord) dataFor(deserialize DeserializeFunc) any {
	r.mu.Lock()
	defer r.mu.Unlock()

	if deserialize == nil {
		if len(r.result.RuntimeData) > 0 {
			return r.result.RuntimeData[0].Data
		}
		return nil
	}
	for _, rd := range r.result.RuntimeData {
		if samePointer(rd.Deserialize, deserialize) {
			return rd.Data
		}
	}
	if r.result.Serialized == nil {
		return nil
	}
	data := deserialize(r.result.Serialized.Blob)
	r.result.RuntimeData = append(r.result.RuntimeData, RuntimeData{Deserialize: deserialize, Data: data})
	return data
}

// snapshot returns a shallow copy of the underlying ComputationResult under
// the record's lock, safe to read without further synchronization.
func (r *contentRecord) snapshot() ComputationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}
