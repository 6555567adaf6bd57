package gekko

import (
	"cmp"
	"slices"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a view into the world. Entities with Camera and Camera2d are
// rendered by the core 2D pipeline.
type Camera struct {
	IsActive bool
	// Order decides which camera renders first when several share a target.
	Order      int
	Target     RenderTarget
	Viewport   *Viewport
	ClearColor ClearColorConfig
	Hdr        bool

	// Msaa is the sample count of the camera's color and depth attachments.
	// The zero value renders single-sampled.
	Msaa Msaa
}

// Msaa is a multisample count: 1, 2, 4 or 8.
type Msaa uint32

const (
	MsaaOff Msaa = 1
	Msaa2   Msaa = 2
	Msaa4   Msaa = 4
	Msaa8   Msaa = 8
)

// Samples maps the zero value to 1.
func (m Msaa) Samples() uint32 {
	return max(1, uint32(m))
}

// NewCamera returns an active camera drawing to the primary window.
func NewCamera() Camera {
	return Camera{IsActive: true}
}

// Camera2d marks a camera rendered by the core 2D pipeline.
type Camera2d struct{}

// RenderTarget names where a camera draws. The zero value is the primary
// window.
type RenderTarget struct {
	Name string
}

var PrimaryWindow = RenderTarget{}

func (t RenderTarget) Compare(other RenderTarget) int {
	return cmp.Compare(t.Name, other.Name)
}

func (t RenderTarget) String() string {
	if t.Name == "" {
		return "primary window"
	}
	return t.Name
}

// Viewport is a sub-rectangle of the render target in physical pixels.
type Viewport struct {
	PhysicalPosition [2]uint32
	PhysicalSize     [2]uint32
	Depth            [2]float32
}

func NewViewport(x, y, width, height uint32) *Viewport {
	return &Viewport{
		PhysicalPosition: [2]uint32{x, y},
		PhysicalSize:     [2]uint32{width, height},
		Depth:            [2]float32{0, 1},
	}
}

// clamped keeps the viewport inside a target of the given size.
func (v Viewport) clamped(width, height uint32) Viewport {
	v.PhysicalPosition[0] = min(v.PhysicalPosition[0], width)
	v.PhysicalPosition[1] = min(v.PhysicalPosition[1], height)
	v.PhysicalSize[0] = min(v.PhysicalSize[0], width-v.PhysicalPosition[0])
	v.PhysicalSize[1] = min(v.PhysicalSize[1], height-v.PhysicalPosition[1])
	return v
}

type ClearColorMode uint8

const (
	// ClearDefault clears with the ClearColor resource.
	ClearDefault ClearColorMode = iota
	// ClearCustom clears with ClearColorConfig.Color.
	ClearCustom
	// ClearNone keeps what is already in the target.
	ClearNone
)

type ClearColorConfig struct {
	Mode  ClearColorMode
	Color wgpu.Color
}

func CustomClearColor(c wgpu.Color) ClearColorConfig {
	return ClearColorConfig{Mode: ClearCustom, Color: c}
}

// ClearColor is the color cameras with ClearDefault clear to.
type ClearColor struct {
	Color wgpu.Color
}

// Transform2d places an entity in the 2D world. Z orders sprites and meshes:
// larger Z is closer to the camera.
type Transform2d struct {
	Translation mgl32.Vec3
	Rotation    float32
	Scale       mgl32.Vec2
}

func NewTransform2d(x, y, z float32) Transform2d {
	return Transform2d{
		Translation: mgl32.Vec3{x, y, z},
		Scale:       mgl32.Vec2{1, 1},
	}
}

func (t Transform2d) Matrix() mgl32.Mat4 {
	translate := mgl32.Translate3D(t.Translation.X(), t.Translation.Y(), t.Translation.Z())
	rotate := mgl32.HomogRotate3DZ(t.Rotation)
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), 1)
	return translate.Mul4(rotate).Mul4(scale)
}

// OrthographicProjection maps one world unit to Scale physical pixels
// around the camera position.
type OrthographicProjection struct {
	Near  float32
	Far   float32
	Scale float32
}

func DefaultOrthographicProjection() OrthographicProjection {
	return OrthographicProjection{Near: -1000, Far: 1000, Scale: 1}
}

// ClipFromView builds a reverse-z orthographic matrix: Far maps to depth 0
// and Near to depth 1.
func (p OrthographicProjection) ClipFromView(width, height uint32) mgl32.Mat4 {
	scale := p.Scale
	if scale == 0 {
		scale = 1
	}
	halfW := float32(width) / 2 * scale
	halfH := float32(height) / 2 * scale
	ortho := mgl32.Ortho(-halfW, halfW, -halfH, halfH, p.Near, p.Far)
	// Ortho maps z into [-1, 1]; remap to [1, 0].
	remap := mgl32.Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, -0.5, 0,
		0, 0, 0.5, 1,
	}
	return remap.Mul4(ortho)
}

// SortedCamera is one active camera in render order.
type SortedCamera struct {
	Entity EntityId
	Order  int
	Target RenderTarget
}

// SortedCameras holds the active cameras ordered by (order, target).
type SortedCameras struct {
	Cameras []SortedCamera
}

// sortCameras orders cameras and reports pairs that share an order on the
// same target, since their relative order is then undefined.
func sortCameras(cameras []SortedCamera) (ambiguous [][2]SortedCamera) {
	slices.SortStableFunc(cameras, func(a, b SortedCamera) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		if c := a.Target.Compare(b.Target); c != 0 {
			return c
		}
		return cmp.Compare(a.Entity, b.Entity)
	})
	for i := 1; i < len(cameras); i++ {
		prev, cur := cameras[i-1], cameras[i]
		if prev.Order == cur.Order && prev.Target == cur.Target {
			ambiguous = append(ambiguous, [2]SortedCamera{prev, cur})
		}
	}
	return ambiguous
}
