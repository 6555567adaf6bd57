//go:build !(js || wasip1 || darwin)

package resource

const asyncPipelineCompilation = true
