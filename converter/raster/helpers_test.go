package raster

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/require"
)

var (
	letter  = PageGeometry{Width: 612, Height: 792}
	a4Land  = PageGeometry{Width: 841.89, Height: 595.28}
	tabloid = PageGeometry{Width: 792, Height: 1224}
	poster  = PageGeometry{Width: 1200, Height: 1000}
)

// fixtureRegion is a filled rectangle drawn on a fixture page, in points from
// the top-left corner.
type fixtureRegion struct {
	X, Y, W, H float64
	Color      color.RGBA
}

type fixturePage struct {
	Geometry PageGeometry
	Regions  []fixtureRegion
}

// writeFixture writes a PDF with one page per entry of pages.
func writeFixture(t *testing.T, pages ...fixturePage) string {
	t.Helper()
	require.NotEmpty(t, pages)

	first := pages[0].Geometry
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: first.Width, Ht: first.Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	for _, page := range pages {
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: page.Geometry.Width, Ht: page.Geometry.Height})
		for _, region := range page.Regions {
			pdf.SetFillColor(int(region.Color.R), int(region.Color.G), int(region.Color.B))
			pdf.Rect(region.X, region.Y, region.W, region.H, "F")
		}
	}

	path := filepath.Join(t.TempDir(), "fixture.pdf")
	require.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

func blankPages(geometries ...PageGeometry) []fixturePage {
	pages := make([]fixturePage, len(geometries))
	for i, g := range geometries {
		pages[i] = fixturePage{Geometry: g}
	}
	return pages
}

// stubRenderer returns a small uniform image for every page and records the
// resolution each page was requested at.
type stubRenderer struct {
	mu       sync.Mutex
	size     image.Point
	fill     color.Color
	failPage int // 1-based, 0 never fails
	panicAt  int
	pages    int // reported page count, 0 disables the cross-check
	dpis     []float64
	closed   bool
}

func (r *stubRenderer) Open(string) (PageRenderer, error) {
	return r, nil
}

func (r *stubRenderer) RenderPage(index int, dpi float64) (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dpis = append(r.dpis, dpi)
	if r.panicAt == index+1 {
		panic("renderer exploded")
	}
	if r.failPage == index+1 {
		return nil, errors.New("render failed")
	}

	size := r.size
	if size == (image.Point{}) {
		size = image.Pt(16, 20)
	}
	fill := r.fill
	if fill == nil {
		fill = color.White
	}
	img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			img.Set(x, y, fill)
		}
	}
	return img, nil
}

func (r *stubRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// countingRenderer adds PageCount to stubRenderer.
type countingRenderer struct {
	*stubRenderer
}

func (r countingRenderer) Open(string) (PageRenderer, error) {
	return r, nil
}

func (r countingRenderer) PageCount() int {
	return r.pages
}

// scriptedEncoder fails the listed quality levels and records every image it
// successfully encodes.
type scriptedEncoder struct {
	failQualities map[int]bool
	empty         bool
	attempts      []QualityLevel
	images        []image.Image
}

func (e *scriptedEncoder) Encode(img image.Image, level QualityLevel) ([]byte, error) {
	e.attempts = append(e.attempts, level)
	if e.failQualities[level.Quality] {
		return nil, errors.New("encoder rejected quality")
	}
	if e.empty {
		return nil, nil
	}
	e.images = append(e.images, img)
	return stdlibEncoder{}.Encode(img, level)
}
