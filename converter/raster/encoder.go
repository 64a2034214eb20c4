package raster

import (
	"errors"
	"fmt"
	"image"
)

var errEmptyEncoding = errors.New("encoder produced no data")

// Encoder compresses a page image to JPEG bytes at the given quality level.
type Encoder interface {
	Encode(img image.Image, level QualityLevel) ([]byte, error)
}

// NewEncoder returns the JPEG encoder selected at build time.
func NewEncoder() (Encoder, error) {
	return newEncoder()
}

type compressedPage struct {
	data     []byte
	level    QualityLevel
	fellBack bool
}

// compressPage tries PrimaryQuality and, only if that fails, FallbackQuality
// once. The primary error is kept in the message when both attempts fail.
func compressPage(enc Encoder, img image.Image) (compressedPage, error) {
	data, err := encodeAt(enc, img, PrimaryQuality)
	if err == nil {
		return compressedPage{data: data, level: PrimaryQuality}, nil
	}
	primaryErr := err

	data, err = encodeAt(enc, img, FallbackQuality)
	if err != nil {
		return compressedPage{}, fmt.Errorf("quality %d failed (%v), fallback quality %d failed: %w",
			PrimaryQuality.Quality, primaryErr, FallbackQuality.Quality, err)
	}
	return compressedPage{data: data, level: FallbackQuality, fellBack: true}, nil
}

func encodeAt(enc Encoder, img image.Image, level QualityLevel) ([]byte, error) {
	data, err := enc.Encode(img, level)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errEmptyEncoding
	}
	return data, nil
}
