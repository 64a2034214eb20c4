//go:build govips && cgo

package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/davidbyttow/govips/v2/vips"
)

// govipsEncoder hands the page to libvips losslessly and exports JPEG with
// optimized Huffman coding when the quality level asks for it.
type govipsEncoder struct{}

func (govipsEncoder) Encode(img image.Image, level QualityLevel) ([]byte, error) {
	var staged bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(&staged, img); err != nil {
		return nil, fmt.Errorf("stage image for libvips: %w", err)
	}

	ref, err := vips.NewImageFromBuffer(staged.Bytes())
	if err != nil {
		return nil, fmt.Errorf("load image into libvips: %w", err)
	}
	defer ref.Close()

	params := vips.NewJpegExportParams()
	params.Quality = level.Quality
	params.OptimizeCoding = level.Optimize
	params.StripMetadata = true

	data, _, err := ref.ExportJpeg(params)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return data, nil
}
