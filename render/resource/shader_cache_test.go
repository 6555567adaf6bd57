package resource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingValidator struct{}

func (failingValidator) Validate(label string, wgsl string) error {
	return errors.New("rejected " + label)
}

func TestShaderCache_GetCachesVariants(t *testing.T) {
	device := newFakeDevice()
	cache := NewShaderCache(nil)
	id := NewShaderId()
	cache.Set(id, NewWGSLShader("sprite.wgsl", spriteShaderSource))

	a, err := cache.Get(device, 0, id, nil)
	require.NoError(t, err)
	b, err := cache.Get(device, 1, id, nil)
	require.NoError(t, err)
	c, err := cache.Get(device, 1, id, []ShaderDefVal{Def("TINT")})
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Len(t, device.shaderSources, 2)
}

func TestShaderCache_GlobalDefsApply(t *testing.T) {
	device := newFakeDevice()
	cache := NewShaderCache(nil, Def("TINT"))
	id := NewShaderId()
	cache.Set(id, NewWGSLShader("sprite.wgsl", spriteShaderSource))

	_, err := cache.Get(device, 0, id, nil)
	require.NoError(t, err)
	assert.Contains(t, device.shaderSources[0], "vec4<f32>(1.0, 0.0, 0.0, 1.0);")

	_, err = cache.Get(device, 0, id, []ShaderDefVal{BoolDef("TINT", false)})
	require.NoError(t, err)
	assert.Contains(t, device.shaderSources[1], "vec4<f32>(1.0);", "pipeline defs override global defs")
}

func TestShaderCache_SetReturnsDependentPipelines(t *testing.T) {
	device := newFakeDevice()
	cache := NewShaderCache(nil)
	view := NewShaderId()
	main := NewShaderId()
	cache.Set(view, NewWGSLShader("view.wgsl", "#define_import_path gekko::view\nconst VIEW: u32 = 1u;"))
	cache.Set(main, NewWGSLShader("main.wgsl", "#import gekko::view\n#import gekko::view\nfn main() {}"))

	_, err := cache.Get(device, 4, main, nil)
	require.NoError(t, err)
	_, err = cache.Get(device, 5, main, nil)
	require.NoError(t, err)
	require.Len(t, device.shaderSources, 1)
	assert.Equal(t, "const VIEW: u32 = 1u;\nfn main() {}\n", device.shaderSources[0])

	affected := cache.Set(view, NewWGSLShader("view.wgsl", "#define_import_path gekko::view\nconst VIEW: u32 = 2u;"))
	assert.ElementsMatch(t, []CachedPipelineId{4, 5}, affected)

	_, err = cache.Get(device, 4, main, nil)
	require.NoError(t, err)
	assert.Len(t, device.shaderSources, 2, "processed variants are dropped on change")
}

func TestShaderCache_NotLoadedRecordsPipeline(t *testing.T) {
	cache := NewShaderCache(nil)
	id := NewShaderId()

	_, err := cache.Get(newFakeDevice(), 3, id, nil)
	assert.ErrorIs(t, err, ErrShaderNotLoaded)
	assert.True(t, isRetryable(err))

	affected := cache.Set(id, NewWGSLShader("late.wgsl", "fn main() {}"))
	assert.Equal(t, []CachedPipelineId{3}, affected)
	assert.True(t, cache.Contains(id))

	assert.Equal(t, []CachedPipelineId{3}, cache.Remove(id))
	assert.False(t, cache.Contains(id))
}

func TestShaderCache_ValidatorFailureIsTerminal(t *testing.T) {
	device := newFakeDevice()
	cache := NewShaderCache(failingValidator{})
	id := NewShaderId()
	cache.Set(id, NewWGSLShader("bad.wgsl", "fn main() {}"))

	_, err := cache.Get(device, 0, id, nil)
	assert.ErrorIs(t, err, ErrProcessShader)
	assert.False(t, isRetryable(err))
	assert.Empty(t, device.shaderSources)
}

func TestDedupPipelineIds(t *testing.T) {
	assert.Equal(t, []CachedPipelineId{2, 1, 3}, dedupPipelineIds([]CachedPipelineId{2, 1, 2, 3, 1}))
}
