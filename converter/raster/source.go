package raster

import (
	"errors"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PageGeometry is the visible size of a page in points.
type PageGeometry struct {
	Width  float64
	Height float64
}

// Area returns the page area in points².
func (g PageGeometry) Area() float64 {
	return g.Width * g.Height
}

// SourceDocument holds what the pipeline needs from the input PDF: its byte
// size and the geometry of every page, in page order.
type SourceDocument struct {
	Path  string
	Size  int64
	Pages []PageGeometry
}

// OpenSource parses the PDF at path and reads the geometry of every page.
// The file is closed before OpenSource returns.
func OpenSource(path string) (*SourceDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat input file: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(f, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to determine page count: %w", err)
	}
	if ctx.PageCount == 0 {
		return nil, errors.New("document has no pages")
	}

	doc := &SourceDocument{
		Path:  path,
		Size:  info.Size(),
		Pages: make([]PageGeometry, 0, ctx.PageCount),
	}
	for pageNum := 1; pageNum <= ctx.PageCount; pageNum++ {
		geometry, err := pageGeometry(ctx, pageNum)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d geometry: %w", pageNum, err)
		}
		doc.Pages = append(doc.Pages, geometry)
	}

	return doc, nil
}

// pageGeometry resolves the visible box of a page: CropBox when present,
// otherwise MediaBox, looking at the page first and then at inherited
// attributes. Quarter-turn rotations swap width and height.
func pageGeometry(ctx *model.Context, pageNum int) (PageGeometry, error) {
	pageDict, _, inhPAttrs, err := ctx.PageDict(pageNum, false)
	if err != nil {
		return PageGeometry{}, fmt.Errorf("failed to get page dict: %w", err)
	}
	if pageDict == nil {
		return PageGeometry{}, errors.New("page dict not found")
	}

	box := boxEntry(ctx, pageDict, "CropBox")
	if box == nil && inhPAttrs != nil && inhPAttrs.CropBox != nil {
		box = inhPAttrs.CropBox
	}
	if box == nil {
		box = boxEntry(ctx, pageDict, "MediaBox")
	}
	if box == nil && inhPAttrs != nil && inhPAttrs.MediaBox != nil {
		box = inhPAttrs.MediaBox
	}
	// US Letter, the same default PDF viewers assume for a page without boxes.
	if box == nil {
		box = types.NewRectangle(0, 0, 612, 792)
	}

	width, height := box.Width(), box.Height()
	if width <= 0 || height <= 0 {
		return PageGeometry{}, fmt.Errorf("invalid page box %.2fx%.2f", width, height)
	}

	rotate := 0
	if r := pageDict.IntEntry("Rotate"); r != nil {
		rotate = *r
	} else if inhPAttrs != nil {
		rotate = inhPAttrs.Rotate
	}
	if rotate%180 != 0 {
		width, height = height, width
	}

	return PageGeometry{Width: width, Height: height}, nil
}

func boxEntry(ctx *model.Context, pageDict types.Dict, key string) *types.Rectangle {
	obj, found := pageDict.Find(key)
	if !found || obj == nil {
		return nil
	}
	arr, err := ctx.DereferenceArray(obj)
	if err != nil || len(arr) != 4 {
		return nil
	}
	return types.RectForArray(arr)
}
