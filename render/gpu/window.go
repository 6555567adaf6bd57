package gpu

import (
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// Window is a GLFW window without a client API; wgpu draws into it through a
// surface. It must be used from the goroutine that created it.
type Window struct {
	raw    *glfw.Window
	width  int
	height int
	title  string

	resized bool
}

func NewWindow(width int, height int, title string) (*Window, error) {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return nil, err
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // wgpu owns presentation, no GL context
	glfw.WindowHint(glfw.Resizable, glfw.True)

	raw, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, err
	}

	w := &Window{raw: raw, title: title}
	// framebuffer size differs from window size on high-DPI displays
	w.width, w.height = raw.GetFramebufferSize()
	raw.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.width = width
		w.height = height
		w.resized = true
	})
	return w, nil
}

// Size is the framebuffer size in pixels.
func (w *Window) Size() (int, int) {
	return w.width, w.height
}

func (w *Window) Title() string {
	return w.title
}

func (w *Window) PollEvents() {
	glfw.PollEvents()
}

func (w *Window) ShouldClose() bool {
	return w.raw.ShouldClose()
}

// TakeResized reports whether the framebuffer changed size since the last call.
func (w *Window) TakeResized() bool {
	resized := w.resized
	w.resized = false
	return resized
}

func (w *Window) surfaceDescriptor() *wgpu.SurfaceDescriptor {
	return wgpuglfw.GetSurfaceDescriptor(w.raw)
}

func (w *Window) Destroy() {
	w.raw.Destroy()
	glfw.Terminate()
}
