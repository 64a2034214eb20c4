package raster

import (
	"fmt"
	"image"
	"strings"
)

// Renderer names accepted by NewRenderer.
const (
	RendererFitz    = "fitz"
	RendererPoppler = "poppler"
)

// Renderer opens a PDF for page rasterization.
type Renderer interface {
	Open(path string) (PageRenderer, error)
}

// PageRenderer rasterizes pages of one open document. Page indexes are
// zero-based. Implementations must not return an alpha-dependent image: a
// transparent page background is treated as white by the pipeline.
type PageRenderer interface {
	RenderPage(index int, dpi float64) (image.Image, error)
	Close() error
}

// pageCounter is implemented by renderers that know the page count of the
// document they opened, letting the engine cross-check the source parser.
type pageCounter interface {
	PageCount() int
}

// NewRenderer returns the renderer registered under name.
func NewRenderer(name string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", RendererFitz:
		return FitzRenderer{}, nil
	case RendererPoppler:
		return NewPopplerRenderer(), nil
	default:
		return nil, fmt.Errorf("unknown renderer: %s (must be '%s' or '%s')", name, RendererFitz, RendererPoppler)
	}
}
