//go:build js || wasip1 || darwin

package resource

// Pipelines are created inline on these platforms; the backends there do
// not tolerate pipeline creation from pool goroutines.
const asyncPipelineCompilation = false
