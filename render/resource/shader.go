package resource

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type shaderDefKind uint8

const (
	shaderDefBool shaderDefKind = iota
	shaderDefInt
	shaderDefUint
)

// ShaderDefVal is a preprocessor define: a bool, a signed or an unsigned value.
type ShaderDefVal struct {
	Name  string
	kind  shaderDefKind
	value int64
}

// Def is a bool define set to true.
func Def(name string) ShaderDefVal {
	return BoolDef(name, true)
}

func BoolDef(name string, v bool) ShaderDefVal {
	var value int64
	if v {
		value = 1
	}
	return ShaderDefVal{Name: name, kind: shaderDefBool, value: value}
}

func IntDef(name string, v int32) ShaderDefVal {
	return ShaderDefVal{Name: name, kind: shaderDefInt, value: int64(v)}
}

func UintDef(name string, v uint32) ShaderDefVal {
	return ShaderDefVal{Name: name, kind: shaderDefUint, value: int64(v)}
}

// Enabled is false only for a bool define set to false.
func (d ShaderDefVal) Enabled() bool {
	return d.kind != shaderDefBool || d.value != 0
}

func (d ShaderDefVal) ValueString() string {
	switch d.kind {
	case shaderDefBool:
		return strconv.FormatBool(d.value != 0)
	case shaderDefUint:
		return strconv.FormatUint(uint64(d.value), 10)
	default:
		return strconv.FormatInt(d.value, 10)
	}
}

func (d ShaderDefVal) String() string {
	if d.kind == shaderDefBool {
		if d.value != 0 {
			return d.Name
		}
		return ""
	}
	return fmt.Sprintf("%s = %s", d.Name, d.ValueString())
}

// Shader is a WGSL source with gekko preprocessor directives:
//
//	#define_import_path some::path
//	#import some::path
//	#ifdef NAME / #ifndef NAME / #if NAME == value / #else / #endif
//	#{NAME} substitution
type Shader struct {
	Path       string
	Source     string
	ImportPath string
	Imports    []string
	ShaderDefs []ShaderDefVal
}

// NewWGSLShader scans source for its import path and imports.
func NewWGSLShader(path string, source string) *Shader {
	shader := &Shader{Path: path, Source: source}
	for _, line := range strings.Split(source, "\n") {
		directive, arg := splitDirective(line)
		switch directive {
		case "#define_import_path":
			shader.ImportPath = arg
		case "#import":
			if arg != "" && !slices.Contains(shader.Imports, arg) {
				shader.Imports = append(shader.Imports, arg)
			}
		}
	}
	return shader
}

func splitDirective(line string) (string, string) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "#{") {
		return "", ""
	}
	directive, arg, _ := strings.Cut(trimmed, " ")
	return directive, strings.TrimSpace(arg)
}

// shaderDefSet resolves defines with later entries overriding earlier ones.
type shaderDefSet map[string]ShaderDefVal

func newShaderDefSet(groups ...[]ShaderDefVal) shaderDefSet {
	defs := make(shaderDefSet)
	for _, group := range groups {
		for _, def := range group {
			defs[def.Name] = def
		}
	}
	return defs
}

// key is a canonical form of the set, used to cache processed variants.
func (s shaderDefSet) key() string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	for _, name := range names {
		def := s[name]
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(int(def.kind)))
		b.WriteByte(':')
		b.WriteString(def.ValueString())
		b.WriteByte(';')
	}
	return b.String()
}

func (s shaderDefSet) defined(name string) bool {
	def, ok := s[name]
	return ok && def.Enabled()
}

type conditionalFrame struct {
	parentActive bool
	active       bool
	seenElse     bool
}

// preprocess evaluates conditionals and substitutions of a single source.
// #import lines are handed to onImport, which returns the text to splice in.
func preprocess(source string, defs shaderDefSet, onImport func(path string) (string, error)) (string, error) {
	var out strings.Builder
	var stack []conditionalFrame
	active := true

	for lineNo, line := range strings.Split(source, "\n") {
		directive, arg := splitDirective(line)
		switch directive {
		case "#ifdef", "#ifndef":
			if arg == "" {
				return "", fmt.Errorf("line %d: %s without a name", lineNo+1, directive)
			}
			cond := defs.defined(arg)
			if directive == "#ifndef" {
				cond = !cond
			}
			stack = append(stack, conditionalFrame{parentActive: active, active: cond})
			active = active && cond
			continue
		case "#if":
			cond := false
			if active {
				var err error
				if cond, err = evalCondition(arg, defs); err != nil {
					return "", fmt.Errorf("line %d: %w", lineNo+1, err)
				}
			}
			stack = append(stack, conditionalFrame{parentActive: active, active: cond})
			active = active && cond
			continue
		case "#else":
			if len(stack) == 0 {
				return "", fmt.Errorf("line %d: #else without #ifdef", lineNo+1)
			}
			top := &stack[len(stack)-1]
			if top.seenElse {
				return "", fmt.Errorf("line %d: duplicate #else", lineNo+1)
			}
			top.seenElse = true
			top.active = !top.active
			active = top.parentActive && top.active
			continue
		case "#endif":
			if len(stack) == 0 {
				return "", fmt.Errorf("line %d: #endif without #ifdef", lineNo+1)
			}
			active = stack[len(stack)-1].parentActive
			stack = stack[:len(stack)-1]
			continue
		case "#define_import_path":
			continue
		case "#import":
			if !active {
				continue
			}
			imported, err := onImport(arg)
			if err != nil {
				return "", err
			}
			out.WriteString(imported)
			if imported != "" && !strings.HasSuffix(imported, "\n") {
				out.WriteByte('\n')
			}
			continue
		}

		if !active {
			continue
		}
		substituted, err := substituteDefs(line, defs)
		if err != nil {
			return "", fmt.Errorf("line %d: %w", lineNo+1, err)
		}
		out.WriteString(substituted)
		out.WriteByte('\n')
	}

	if len(stack) != 0 {
		return "", fmt.Errorf("%d unterminated conditional block(s)", len(stack))
	}
	return out.String(), nil
}

func evalCondition(expr string, defs shaderDefSet) (bool, error) {
	fields := strings.Fields(expr)
	if len(fields) != 3 {
		return false, fmt.Errorf("malformed #if %q", expr)
	}
	name, op, want := fields[0], fields[1], fields[2]
	def, ok := defs[name]
	if !ok {
		return false, fmt.Errorf("#if references undefined def %q", name)
	}
	got := def.ValueString()
	switch op {
	case "==":
		return got == want, nil
	case "!=":
		return got != want, nil
	default:
		return false, fmt.Errorf("unsupported #if operator %q", op)
	}
}

func substituteDefs(line string, defs shaderDefSet) (string, error) {
	if !strings.Contains(line, "#{") {
		return line, nil
	}
	var b strings.Builder
	rest := line
	for {
		start := strings.Index(rest, "#{")
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return "", fmt.Errorf("unterminated #{ in %q", line)
		}
		name := rest[start+2 : start+end]
		def, ok := defs[name]
		if !ok {
			return "", fmt.Errorf("substitution of undefined def %q", name)
		}
		b.WriteString(rest[:start])
		b.WriteString(def.ValueString())
		rest = rest[start+end+1:]
	}
}
