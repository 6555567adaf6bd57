package resource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noImports(path string) (string, error) {
	return "", errors.New("unexpected import " + path)
}

func TestNewWGSLShader_ScansDirectives(t *testing.T) {
	shader := NewWGSLShader("mesh2d.wgsl", `#define_import_path gekko::mesh2d
#import gekko::view
#import gekko::view
  #import gekko::globals
fn main() {}`)

	assert.Equal(t, "gekko::mesh2d", shader.ImportPath)
	assert.Equal(t, []string{"gekko::view", "gekko::globals"}, shader.Imports)
}

func TestShaderDefVal_String(t *testing.T) {
	assert.Equal(t, "A", Def("A").String())
	assert.Equal(t, "", BoolDef("B", false).String())
	assert.Equal(t, "C = -2", IntDef("C", -2).String())
	assert.Equal(t, "D = 7", UintDef("D", 7).String())
	assert.False(t, BoolDef("B", false).Enabled())
	assert.True(t, IntDef("Z", 0).Enabled())
}

func TestShaderDefSet_LaterOverrides(t *testing.T) {
	defs := newShaderDefSet([]ShaderDefVal{Def("A"), UintDef("N", 1)}, []ShaderDefVal{BoolDef("A", false), UintDef("N", 2)})

	assert.False(t, defs.defined("A"))
	assert.Equal(t, "2", defs["N"].ValueString())
	assert.Equal(t, newShaderDefSet([]ShaderDefVal{UintDef("N", 2), BoolDef("A", false)}).key(), defs.key())
}

func TestPreprocess_Conditionals(t *testing.T) {
	source := `a
#ifdef ON
b
#else
c
#endif
#ifndef ON
d
#endif
#ifdef OFF
e
#ifdef ON
f
#endif
#endif
#if COUNT == 3
g
#else
h
#endif
#if COUNT != 3
i
#endif`
	defs := newShaderDefSet([]ShaderDefVal{Def("ON"), BoolDef("OFF", false), UintDef("COUNT", 3)})

	out, err := preprocess(source, defs, noImports)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\ng\n", out)
}

func TestPreprocess_IfInsideInactiveBlockIgnoresUndefined(t *testing.T) {
	source := "#ifdef MISSING\n#if UNKNOWN == 1\nx\n#endif\n#endif\ny"
	out, err := preprocess(source, newShaderDefSet(), noImports)
	require.NoError(t, err)
	assert.Equal(t, "y\n", out)
}

func TestPreprocess_Substitution(t *testing.T) {
	defs := newShaderDefSet([]ShaderDefVal{UintDef("MAX_LIGHTS", 16)})
	out, err := preprocess("var<uniform> lights: array<Light, #{MAX_LIGHTS}>;", defs, noImports)
	require.NoError(t, err)
	assert.Equal(t, "var<uniform> lights: array<Light, 16>;\n", out)

	_, err = preprocess("#{NOPE}", defs, noImports)
	assert.Error(t, err)
}

func TestPreprocess_Imports(t *testing.T) {
	var requested []string
	out, err := preprocess("#define_import_path gekko::main\n#import gekko::view\nmain", newShaderDefSet(), func(path string) (string, error) {
		requested = append(requested, path)
		return "view", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"gekko::view"}, requested)
	assert.Equal(t, "view\nmain\n", out)
}

func TestPreprocess_Errors(t *testing.T) {
	cases := map[string]string{
		"unterminated":   "#ifdef A\nx",
		"stray else":     "#else",
		"stray endif":    "#endif",
		"duplicate else": "#ifdef A\n#else\n#else\n#endif",
		"malformed if":   "#if A\n#endif",
		"undefined if":   "#if A == 1\n#endif",
		"bad operator":   "#if N >= 1\n#endif",
		"empty ifdef":    "#ifdef\n#endif",
	}
	defs := newShaderDefSet([]ShaderDefVal{UintDef("N", 1)})
	for name, source := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := preprocess(source, defs, noImports)
			assert.Error(t, err)
		})
	}
}
