package gpu

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/gekko-render/render/resource"
)

var errNoSurfaceFormat = errors.New("gpu: surface reports no supported formats")

// Surface is the presentable swapchain of a window and the device that
// renders into it.
type Surface struct {
	window  *Window
	raw     *wgpu.Surface
	adapter *wgpu.Adapter
	device  *Device
	config  wgpu.SurfaceConfiguration

	current *wgpu.Texture
}

type SurfaceOptions struct {
	PresentMode wgpu.PresentMode
	Limits      *wgpu.Limits
}

func NewSurface(window *Window, opts SurfaceOptions) (*Surface, error) {
	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	raw := instance.CreateSurface(window.surfaceDescriptor())
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: raw,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: request adapter: %w", err)
	}

	limits := wgpu.DefaultLimits()
	if opts.Limits != nil {
		limits = *opts.Limits
	}
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:          "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{Limits: limits},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: request device: %w", err)
	}

	caps := raw.GetCapabilities(adapter)
	if len(caps.Formats) == 0 {
		return nil, errNoSurfaceFormat
	}
	width, height := window.Size()
	s := &Surface{
		window:  window,
		raw:     raw,
		adapter: adapter,
		device:  NewDevice(device, limits),
		config: wgpu.SurfaceConfiguration{
			Usage:       wgpu.TextureUsageRenderAttachment,
			Format:      caps.Formats[0],
			Width:       uint32(width),
			Height:      uint32(height),
			PresentMode: opts.PresentMode,
			AlphaMode:   caps.AlphaModes[0],
		},
	}
	raw.Configure(adapter, device, &s.config)
	return s, nil
}

func (s *Surface) Device() *Device { return s.device }

func (s *Surface) Format() wgpu.TextureFormat { return s.config.Format }

func (s *Surface) Size() (uint32, uint32) { return s.config.Width, s.config.Height }

// Resize reconfigures the swapchain. Zero sizes (a minimized window) are ignored.
func (s *Surface) Resize(width, height uint32) {
	if width == 0 || height == 0 {
		return
	}
	s.config.Width = width
	s.config.Height = height
	s.raw.Configure(s.adapter, s.device.raw, &s.config)
}

// Acquire returns a view of the next swapchain image.
func (s *Surface) Acquire() (*resource.TextureView, error) {
	texture, err := s.raw.GetCurrentTexture()
	if err != nil {
		return nil, err
	}
	view, err := texture.CreateView(nil)
	if err != nil {
		return nil, err
	}
	s.current = texture
	return resource.NewTextureView(view), nil
}

func (s *Surface) Present() {
	if s.current == nil {
		return
	}
	s.raw.Present()
	s.current = nil
}
