package job

// Payload is the tagged-variant escape hatch that stands in for the
// source's dynamic_cast<FunctionInput>/<FunctionOutput>. A
// registered function's code closure declares the Kind it expects and
// fails the invocation with InvalidArgument (via simerr) when the
// supplied Payload does not match.
type Payload interface {
	// Kind identifies the concrete shape of the payload, e.g. "bytes",
	// "matrix", or a caller-defined tag.
	Kind() string
	// As attempts to populate target (a pointer) with this payload's
	// value, returning false on a kind/type mismatch.
	As(target any) bool
}

// BytesPayload is the common case: an opaque byte blob.
type BytesPayload struct {
	Data []byte
}

func (p BytesPayload) Kind() string { return "bytes" }

func (p BytesPayload) As(target any) bool {
	dst, ok := target.(*[]byte)
	if !ok {
		return false
	}
	*dst = p.Data
	return true
}
