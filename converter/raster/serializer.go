package raster

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Serialization records which write path produced the output file.
type Serialization string

const (
	SerializationOptimized Serialization = "optimized"
	SerializationPlain     Serialization = "plain"
)

// OptimizeFunc rewrites the PDF read from rs into w.
type OptimizeFunc func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) error

// Serializer writes the assembled document to disk. The primary path runs the
// pdfcpu optimizer (drops unused objects, folds duplicate resources, packs
// objects into compressed object streams with an xref stream); if that fails
// the assembled bytes are written once more without it.
type Serializer struct {
	Optimize OptimizeFunc
}

// NewSerializer returns a serializer backed by pdfcpu.
func NewSerializer() Serializer {
	return Serializer{Optimize: api.Optimize}
}

func optimizeConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = true
	conf.WriteXRefStream = true
	return conf
}

// Save writes raw to outputPath, creating the parent directory if needed.
// A file only appears at outputPath once it has been completely written.
func (s Serializer) Save(raw []byte, outputPath string) (Serialization, int64, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	optimize := s.Optimize
	if optimize == nil {
		optimize = api.Optimize
	}

	var optimized bytes.Buffer
	primaryErr := optimize(bytes.NewReader(raw), &optimized, optimizeConfig())
	if primaryErr == nil {
		primaryErr = writeFileAtomic(outputPath, optimized.Bytes())
		if primaryErr == nil {
			return SerializationOptimized, int64(optimized.Len()), nil
		}
	}

	if err := writeFileAtomic(outputPath, raw); err != nil {
		return "", 0, fmt.Errorf("optimized write failed (%v), plain write failed: %w", primaryErr, err)
	}
	return SerializationPlain, int64(len(raw)), nil
}

// writeFileAtomic writes data to a temporary file next to path and renames it
// into place.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pdfinvert-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync output: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set output permissions: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}
