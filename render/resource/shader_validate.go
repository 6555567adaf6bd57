package resource

import (
	"github.com/gogpu/naga"
)

// ShaderValidator checks a fully processed WGSL source before a module is
// created from it. A failure is terminal for the pipelines using it.
type ShaderValidator interface {
	Validate(label string, wgsl string) error
}

// NagaValidator runs the source through the naga WGSL front end.
type NagaValidator struct{}

func (NagaValidator) Validate(label string, wgsl string) error {
	_, err := naga.Compile(wgsl)
	return err
}

type NopValidator struct{}

func (NopValidator) Validate(string, string) error { return nil }
