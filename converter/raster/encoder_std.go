package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// stdlibEncoder writes baseline JPEG with image/jpeg. The Optimize flag has no
// equivalent there and is ignored; build with the govips tag for optimized
// Huffman tables.
type stdlibEncoder struct{}

func (stdlibEncoder) Encode(img image.Image, level QualityLevel) ([]byte, error) {
	quality := level.Quality
	if quality <= 0 || quality > 100 {
		quality = PrimaryQuality.Quality
	}

	var buf bytes.Buffer
	bounds := img.Bounds()
	buf.Grow(bounds.Dx() * bounds.Dy() / 4)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
