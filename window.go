package vkr

import (
	"fmt"

	"github.com/vulkan-go/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

// WindowSystem is the surface a RenderDevice presents to. Implementations
// must make a Vulkan loader proc address available before Initialize is
// called; the GLFW implementation does this in NewWindow.
type WindowSystem interface {
	// RequiredInstanceExtensions lists the instance extensions the
	// window system needs enabled.
	RequiredInstanceExtensions() []string

	// CreateSurface creates a presentation surface on the instance.
	CreateSurface(instance vk.Instance) (vk.Surface, error)

	// FramebufferExtent returns the current framebuffer size in
	// pixels. Both dimensions are zero while minimized.
	FramebufferExtent() vk.Extent2D

	// PollEvents pumps the window system's event queue.
	PollEvents()

	// ShouldClose reports whether the user asked to close the window.
	ShouldClose() bool

	Destroy()
}

// Window is the GLFW implementation of WindowSystem.
type Window struct {
	GlfwWindow *glfw.Window
}

// NewWindow initializes GLFW, wires its Vulkan loader into the vulkan
// bindings and opens a resizable window without a client API.
func NewWindow(width, height int, title string) (*Window, error) {
	err := glfw.Init()
	if err != nil {
		return nil, fmt.Errorf("unable to initialize glfw: %w", err)
	}

	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	err = vk.Init()
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("unable to initialize vulkan: %w", err)
	}

	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, fmt.Errorf("glfw reports no vulkan support")
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	window, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("unable to create window: %w", err)
	}

	return &Window{GlfwWindow: window}, nil
}

func (w *Window) RequiredInstanceExtensions() []string {
	return w.GlfwWindow.GetRequiredInstanceExtensions()
}

func (w *Window) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	surface, err := w.GlfwWindow.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, fmt.Errorf("unable to create window surface: %w", err)
	}
	return vk.SurfaceFromPointer(surface), nil
}

func (w *Window) FramebufferExtent() vk.Extent2D {
	width, height := w.GlfwWindow.GetFramebufferSize()
	return vk.Extent2D{Width: uint32(width), Height: uint32(height)}
}

func (w *Window) PollEvents() {
	glfw.PollEvents()
}

func (w *Window) ShouldClose() bool {
	return w.GlfwWindow.ShouldClose()
}

func (w *Window) Destroy() {
	w.GlfwWindow.Destroy()
	glfw.Terminate()
}
