package raster

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

var errNoPopplerTool = errors.New("no PDF renderer available. Please install poppler-utils:\n  macOS: brew install poppler\n  Ubuntu: sudo apt install poppler-utils\n  Windows: download from https://github.com/oschwartz10612/poppler-windows")

// PopplerRenderer renders pages by running pdftoppm, or pdftocairo when
// pdftoppm is not installed.
type PopplerRenderer struct {
	tools []string
}

// NewPopplerRenderer creates a renderer that prefers pdftoppm (best quality).
func NewPopplerRenderer() *PopplerRenderer {
	return &PopplerRenderer{tools: []string{"pdftoppm", "pdftocairo"}}
}

func (r *PopplerRenderer) Open(path string) (PageRenderer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	var available []string
	for _, tool := range r.tools {
		if _, err := exec.LookPath(tool); err == nil {
			available = append(available, tool)
		}
	}
	if len(available) == 0 {
		return nil, errNoPopplerTool
	}

	return &popplerDocument{path: path, tools: available}, nil
}

type popplerDocument struct {
	path  string
	tools []string
}

// RenderPage renders one page into a scratch directory, decodes it and
// removes the directory again.
func (d *popplerDocument) RenderPage(index int, dpi float64) (image.Image, error) {
	tempDir, err := os.MkdirTemp("", "pdfinvert-page-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	var lastErr error
	for _, tool := range d.tools {
		img, err := d.renderWith(tool, index, dpi, tempDir)
		if err == nil {
			return img, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (d *popplerDocument) renderWith(tool string, index int, dpi float64, tempDir string) (image.Image, error) {
	outputPrefix := filepath.Join(tempDir, "page")
	pageNum := strconv.Itoa(index + 1)

	cmd := exec.Command(tool,
		"-png",
		"-r", strconv.FormatFloat(dpi, 'f', -1, 64),
		"-f", pageNum,
		"-l", pageNum,
		"-singlefile",
		d.path,
		outputPrefix,
	)

	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s failed: %w\nOutput: %s", tool, err, string(output))
	}

	return loadPNG(outputPrefix + ".png")
}

func (d *popplerDocument) Close() error {
	return nil
}

// loadPNG loads a PNG image from a file
func loadPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return png.Decode(f)
}
