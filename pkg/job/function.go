package job

import "context"

// StorageHandle is the opaque handle a function's code closure uses
// to reach the storage service. Storage services are an external
// collaborator out of scope for this module; the core only
// threads the handle through, never interprets it.
type StorageHandle any

// FunctionCode is the code a Function runs: it consumes an input
// Payload and a StorageHandle and produces an output Payload, or an
// error.
type FunctionCode func(ctx context.Context, input Payload, storage StorageHandle) (Payload, error)

// ImageFile describes a container image's declared size, used by the
// serverless scheduler and compute service for disk/copy accounting.
// It carries no actual bytes — the underlying simulation kernel owns
// image transfer.
type ImageFile struct {
	Name      string
	SizeBytes int64
}

// Function is an immutable descriptor of code plus a container image.
type Function struct {
	Name       string
	Code       FunctionCode
	Image      ImageFile
	SourceCode string // optional; empty if not provided
}

func NewFunction(name string, code FunctionCode, image ImageFile) *Function {
	return &Function{Name: name, Code: code, Image: image}
}

// RegisteredFunction binds a Function to one serverless service with
// explicit resource limits.
type RegisteredFunction struct {
	Function  *Function
	Service   string
	TimeLimitSeconds int64
	DiskLimitBytes   int64
	RAMLimitBytes    int64
	IngressBytes     int64
	EgressBytes      int64
}
