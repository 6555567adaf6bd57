package resource

import (
	"errors"
	"fmt"
)

type PipelineCacheErrorKind uint8

const (
	// ErrorKindShaderNotLoaded means the shader asset has not been set yet.
	ErrorKindShaderNotLoaded PipelineCacheErrorKind = iota
	// ErrorKindShaderImportNotYetAvailable means an #import path has no shader registered for it.
	ErrorKindShaderImportNotYetAvailable
	ErrorKindProcessShader
	ErrorKindCreateShaderModule
	ErrorKindCreatePipeline
)

func (k PipelineCacheErrorKind) String() string {
	switch k {
	case ErrorKindShaderNotLoaded:
		return "shader not loaded"
	case ErrorKindShaderImportNotYetAvailable:
		return "shader import not yet available"
	case ErrorKindProcessShader:
		return "failed to process shader"
	case ErrorKindCreateShaderModule:
		return "failed to create shader module"
	case ErrorKindCreatePipeline:
		return "failed to create pipeline"
	default:
		return fmt.Sprintf("PipelineCacheErrorKind(%d)", uint8(k))
	}
}

// PipelineCacheError is the error stored in a pipeline's Err state.
type PipelineCacheError struct {
	Kind   PipelineCacheErrorKind
	Shader ShaderId
	Import string
	Err    error
}

var (
	ErrShaderNotLoaded             = &PipelineCacheError{Kind: ErrorKindShaderNotLoaded}
	ErrShaderImportNotYetAvailable = &PipelineCacheError{Kind: ErrorKindShaderImportNotYetAvailable}
	ErrProcessShader               = &PipelineCacheError{Kind: ErrorKindProcessShader}
	ErrCreateShaderModule          = &PipelineCacheError{Kind: ErrorKindCreateShaderModule}
	ErrCreatePipeline              = &PipelineCacheError{Kind: ErrorKindCreatePipeline}
	ErrPushConstantsUnsupported    = errors.New("resource: push constant ranges are not supported by this device")
	errUnexpectedPipelineKind      = errors.New("resource: pipeline id refers to a different pipeline kind")
	errPipelineCacheDeviceRequired = errors.New("resource: pipeline cache requires a render device")
)

func (e *PipelineCacheError) Error() string {
	msg := e.Kind.String()
	if e.Shader != "" {
		msg = fmt.Sprintf("%s: shader %s", msg, e.Shader)
	}
	if e.Import != "" {
		msg = fmt.Sprintf("%s: import %q", msg, e.Import)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *PipelineCacheError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels, so errors.Is(err, ErrShaderNotLoaded) works
// for any shader.
func (e *PipelineCacheError) Is(target error) bool {
	t, ok := target.(*PipelineCacheError)
	if !ok {
		return false
	}
	if t.Shader != "" || t.Import != "" || t.Err != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// Retryable reports whether the pipeline should go back to Queued on the next
// ProcessQueue.
func (e *PipelineCacheError) Retryable() bool {
	return e.Kind == ErrorKindShaderNotLoaded || e.Kind == ErrorKindShaderImportNotYetAvailable
}

func isRetryable(err error) bool {
	var pcErr *PipelineCacheError
	if errors.As(err, &pcErr) {
		return pcErr.Retryable()
	}
	return false
}
