package converter

import (
	"context"
	"fmt"

	"github.com/phuslu/log"

	"pdfinvert/converter/raster"
)

// ModeRaster renders pages to images, inverts them and reassembles a PDF.
const ModeRaster = "raster"

// Options holds the configuration for PDF conversion
type Options struct {
	InputFile  string
	OutputFile string
	Mode       string // only "raster"; empty selects it
	DPI        int    // requested resolution, tiers may lower it per page
	Renderer   string // "fitz" or "poppler"
}

// Converter is implemented by conversion engines.
type Converter interface {
	Convert(ctx context.Context, input, output string) (raster.Result, error)
}

// New builds the engine selected by opts without touching any file.
func New(opts Options, logger *log.Logger) (Converter, error) {
	switch opts.Mode {
	case "", ModeRaster:
	default:
		return nil, fmt.Errorf("unknown mode: %s", opts.Mode)
	}

	renderer, err := raster.NewRenderer(opts.Renderer)
	if err != nil {
		return nil, err
	}

	engine, err := raster.NewEngine(opts.DPI,
		raster.WithRenderer(renderer),
		raster.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create raster engine: %w", err)
	}
	return engine, nil
}

// Convert performs the PDF inversion described by opts.
func Convert(ctx context.Context, opts Options, logger *log.Logger) (raster.Result, error) {
	conv, err := New(opts, logger)
	if err != nil {
		return raster.Result{}, err
	}
	return conv.Convert(ctx, opts.InputFile, opts.OutputFile)
}
