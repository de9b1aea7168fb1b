package base

// SerializedData is the byte-blob form of a computed value. The core never
// interprets the bytes; encoding/decoding is entirely the caller's concern.
type SerializedData struct {
	Blob []byte
}

// RuntimeData is one typed, in-memory representation of a content value,
// tagged by the Deserialize function pointer that produced it. Equal
// function pointers are treated as equal representation types, mirroring
// the original's pointer-identity tagging.
type RuntimeData struct {
	Deserialize DeserializeFunc
	Data        any
}

// ErrorData carries a first-class error message. Errors are cached content
// like any other value - re-requesting an errored resource does not
// recompute it (unless the resource is volatile).
type ErrorData struct {
	Message string
}

// ComputationResult is what a computation callback returns: exactly one of
// a serialized blob, one-or-more runtime representations, or an error is
// expected to carry meaningful data, though the serialized form and a
// single runtime representation may coexist (see contentRecord in
// contentrecord.go, which allows lazily appending further runtime representations
// alongside an initial serialized blob).
type ComputationResult struct {
	Serialized  *SerializedData
	RuntimeData []RuntimeData
	Error       *ErrorData
}

// HasData reports whether this result carries any content at all.
func (r ComputationResult) HasData() bool {
	return r.Serialized != nil || len(r.RuntimeData) > 0 || r.Error != nil
}

// HasSerializableData reports whether this result can be durably persisted
// as-is (i.e. it is either a serialized blob or an error message).
func (r ComputationResult) HasSerializableData() bool {
	return r.Serialized != nil || r.Error != nil
}

// ContentRef is the value carrier callers see. Exactly one of (Data,
// Serialized, Error) is meaningful, in that priority order.
type ContentRef struct {
	Hash ContentHash

	// Generation this content was computed for.
	Generation int64

	// IsOutdated is true when the data is still valid to use but a newer
	// computation is guaranteed to have been (or be about to be) enqueued.
	IsOutdated bool

	// Data holds a typed runtime representation, or nil.
	Data any

	// Serialized holds the raw serialized bytes, if any (can be present
	// even when Data is also set).
	Serialized []byte

	// ErrorMsg holds the error description, if this content is an error.
	ErrorMsg string
}

// HasError reports whether this ref is an error result. A ref with
// serialized bytes but no decoded runtime representation (e.g. one
// returned by CollectAllPersistentContent, or any resource defined without
// a Deserialize) is not an error.
func (c ContentRef) HasError() bool { return c.ErrorMsg != "" }

// HasValue reports whether this ref carries usable (non-error) content,
// regardless of whether it was decoded into a runtime representation.
func (c ContentRef) HasValue() bool { return !c.HasError() }

// ComputeFunc is the callback a computation runs to produce content from its
// (already-resolved) argument contents. Argument content is never outdated
// by the time this is invoked (see eval.go).
type ComputeFunc func(args []ContentRef) ComputationResult

// DeserializeFunc decodes a serialized blob into a typed runtime form. It is
// compared by pointer identity to tag cached runtime representations, so a
// single *DeserializeFunc value should be reused across calls for the same
// resource rather than re-allocated per call.
type DeserializeFunc func(blob []byte) any

// MakeRuntimeContentHashFunc derives a ContentHash from a runtime-only
// value, for computations whose output is not serializable but is still
// deterministically hashable.
type MakeRuntimeContentHashFunc func(data any) ContentHash
