package raster

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

const producer = "pdfinvert"

// Assembler builds the output document: one page per source page, each
// carrying a single JPEG that fills the page.
type Assembler struct {
	pdf   *fpdf.Fpdf
	pages int
}

// NewAssembler starts an output document in point units. first only sets the
// default page size; every page still gets its own size in AddPage.
func NewAssembler(first PageGeometry) *Assembler {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: first.Width, Ht: first.Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCompression(true)
	pdf.SetCreator(producer, false)
	pdf.SetProducer(producer, false)

	return &Assembler{pdf: pdf}
}

// AddPage appends a page of the given size with jpegData stretched over it.
func (a *Assembler) AddPage(geometry PageGeometry, jpegData []byte) error {
	a.pages++
	name := fmt.Sprintf("page-%d", a.pages)
	opts := fpdf.ImageOptions{ImageType: "JPG"}

	a.pdf.AddPageFormat("P", fpdf.SizeType{Wd: geometry.Width, Ht: geometry.Height})
	a.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(jpegData))
	a.pdf.ImageOptions(name, 0, 0, geometry.Width, geometry.Height, false, opts, 0, "")

	if err := a.pdf.Error(); err != nil {
		return fmt.Errorf("failed to insert page %d: %w", a.pages, err)
	}
	return nil
}

// PageCount returns the number of pages added so far.
func (a *Assembler) PageCount() int {
	return a.pages
}

// Bytes closes the document and returns its serialized form. The assembler
// cannot be used afterwards.
func (a *Assembler) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := a.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}
