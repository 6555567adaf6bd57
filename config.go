package gekko

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
	"golang.org/x/image/colornames"
	"gopkg.in/yaml.v3"
)

// RenderSettings configures the render timeline.
type RenderSettings struct {
	SynchronousPipelineCompilation bool   `yaml:"synchronous_pipeline_compilation"`
	PipelineWorkers                int    `yaml:"pipeline_workers"`
	PipelineQueueSize              int    `yaml:"pipeline_queue_size"`
	ValidateShaders                bool   `yaml:"validate_shaders"`
	ClearColor                     string `yaml:"clear_color"`
	DebugLogging                   bool   `yaml:"debug_logging"`
}

const (
	defaultPipelineWorkers   = 4
	defaultPipelineQueueSize = 64
	defaultClearColor        = "darkslategray"

	syncPipelinesEnv = "GEKKO_SYNC_PIPELINES"
)

var errUnknownColor = errors.New("config: unknown color name")

func DefaultRenderSettings() RenderSettings {
	return RenderSettings{
		PipelineWorkers:   defaultPipelineWorkers,
		PipelineQueueSize: defaultPipelineQueueSize,
		ClearColor:        defaultClearColor,
	}
}

// LoadRenderSettings parses yaml settings. Missing fields take their
// defaults, then environment overrides apply.
func LoadRenderSettings(r io.Reader) (RenderSettings, error) {
	settings := DefaultRenderSettings()
	if err := yaml.NewDecoder(r).Decode(&settings); err != nil && !errors.Is(err, io.EOF) {
		return RenderSettings{}, fmt.Errorf("config: decode render settings: %w", err)
	}
	settings.fillDefaults()
	settings.applyEnv()
	if _, err := settings.ClearColorValue(); err != nil {
		return RenderSettings{}, err
	}
	return settings, nil
}

// LoadRenderSettingsFile is LoadRenderSettings on a file path.
func LoadRenderSettingsFile(path string) (RenderSettings, error) {
	f, err := os.Open(path)
	if err != nil {
		return RenderSettings{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	return LoadRenderSettings(f)
}

func (s *RenderSettings) fillDefaults() {
	if s.PipelineWorkers <= 0 {
		s.PipelineWorkers = defaultPipelineWorkers
	}
	if s.PipelineQueueSize <= 0 {
		s.PipelineQueueSize = defaultPipelineQueueSize
	}
	if s.ClearColor == "" {
		s.ClearColor = defaultClearColor
	}
}

func (s *RenderSettings) applyEnv() {
	v, ok := os.LookupEnv(syncPipelinesEnv)
	if !ok {
		return
	}
	if enabled, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
		s.SynchronousPipelineCompilation = enabled
	}
}

// ClearColorValue resolves ClearColor as a CSS color name.
func (s RenderSettings) ClearColorValue() (wgpu.Color, error) {
	name := s.ClearColor
	if name == "" {
		name = defaultClearColor
	}
	return ColorByName(name)
}

// ColorByName resolves a CSS color name to a linear wgpu color.
func ColorByName(name string) (wgpu.Color, error) {
	c, ok := colornames.Map[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return wgpu.Color{}, fmt.Errorf("%w: %q", errUnknownColor, name)
	}
	return LinearColor(c), nil
}

// LinearColor converts an 8-bit sRGB color to the linear color space render
// targets expect.
func LinearColor(c color.RGBA) wgpu.Color {
	return wgpu.Color{
		R: srgbToLinear(c.R),
		G: srgbToLinear(c.G),
		B: srgbToLinear(c.B),
		A: float64(c.A) / 255,
	}
}

func srgbToLinear(c uint8) float64 {
	v := float64(c) / 255
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}
