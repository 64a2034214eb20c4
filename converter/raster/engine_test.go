package raster

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, dpi int, opts ...Option) *Engine {
	t.Helper()
	engine, err := NewEngine(dpi, opts...)
	require.NoError(t, err)
	return engine
}

func assertNoOutput(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist, "no output file may exist after a failure")

	entries, err := os.ReadDir(filepath.Dir(path))
	if err == nil {
		assert.Empty(t, entries, "no temporary files may be left behind")
	}
}

func TestConvertPreservesPageCountAndSizes(t *testing.T) {
	geometries := []PageGeometry{letter, a4Land, tabloid, poster}
	input := writeFixture(t, blankPages(geometries...)...)
	output := filepath.Join(t.TempDir(), "out", "inverted.pdf")
	renderer := &stubRenderer{}
	engine := newTestEngine(t, 600, WithRenderer(renderer), WithEncoder(&scriptedEncoder{}))

	result, err := engine.Convert(context.Background(), input, output)

	require.NoError(t, err)
	assert.Equal(t, len(geometries), result.Pages)
	assert.NotEmpty(t, result.DocumentID)
	assert.Positive(t, result.OutputBytes)
	assert.Positive(t, result.SizeRatio)
	assert.Equal(t, ClassifySizeRatio(result.SizeRatio), result.SizeVerdict)
	assert.Empty(t, result.FallbackPages)
	assert.True(t, renderer.closed)

	doc, err := OpenSource(output)
	require.NoError(t, err)
	require.Len(t, doc.Pages, len(geometries))
	for i, want := range geometries {
		assert.InDelta(t, want.Width, doc.Pages[i].Width, 0.01, "page %d width", i+1)
		assert.InDelta(t, want.Height, doc.Pages[i].Height, 0.01, "page %d height", i+1)
	}
}

func TestConvertAppliesResolutionPolicyPerPage(t *testing.T) {
	large := PageGeometry{Width: 800, Height: 800} // 640,000 pt²
	input := writeFixture(t, blankPages(letter, large, poster)...)
	renderer := &stubRenderer{}
	engine := newTestEngine(t, 1000, WithRenderer(renderer), WithEncoder(&scriptedEncoder{}))

	_, err := engine.Convert(context.Background(), input, filepath.Join(t.TempDir(), "out.pdf"))

	require.NoError(t, err)
	assert.Equal(t, []float64{1000, 700, 600}, renderer.dpis)
}

func TestConvertInvertsPixels(t *testing.T) {
	input := writeFixture(t, blankPages(letter)...)
	enc := &scriptedEncoder{}
	renderer := &stubRenderer{fill: color.RGBA{R: 255, G: 0, B: 0, A: 255}}
	engine := newTestEngine(t, 600, WithRenderer(renderer), WithEncoder(enc))

	_, err := engine.Convert(context.Background(), input, filepath.Join(t.TempDir(), "out.pdf"))

	require.NoError(t, err)
	require.Len(t, enc.images, 1)
	rgba, ok := enc.images[0].(*image.RGBA)
	require.True(t, ok)
	assert.Equal(t, color.RGBA{R: 0, G: 255, B: 255, A: 255}, rgba.RGBAAt(3, 3))
}

func TestConvertDownscalesOversizedRasters(t *testing.T) {
	input := writeFixture(t, blankPages(letter)...)
	enc := &scriptedEncoder{}
	renderer := &stubRenderer{size: image.Pt(300, 120)}
	engine := newTestEngine(t, 600, WithRenderer(renderer), WithEncoder(enc), WithMaxDimension(100))

	_, err := engine.Convert(context.Background(), input, filepath.Join(t.TempDir(), "out.pdf"))

	require.NoError(t, err)
	require.Len(t, enc.images, 1)
	assert.Equal(t, image.Rect(0, 0, 100, 40), enc.images[0].Bounds())
}

func TestConvertRecordsFallbackPages(t *testing.T) {
	input := writeFixture(t, blankPages(letter, letter)...)
	enc := &scriptedEncoder{failQualities: map[int]bool{92: true}}
	engine := newTestEngine(t, 600, WithRenderer(&stubRenderer{}), WithEncoder(enc))
	output := filepath.Join(t.TempDir(), "out.pdf")

	result, err := engine.Convert(context.Background(), input, output)

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, result.FallbackPages)
	assert.FileExists(t, output)
}

func TestConvertUsesPlainWriteWhenOptimizerFails(t *testing.T) {
	input := writeFixture(t, blankPages(letter)...)
	serializer := Serializer{Optimize: func(io.ReadSeeker, io.Writer, *model.Configuration) error {
		return errors.New("optimizer broke")
	}}
	engine := newTestEngine(t, 600, WithRenderer(&stubRenderer{}), WithEncoder(&scriptedEncoder{}), WithSerializer(serializer))
	output := filepath.Join(t.TempDir(), "out.pdf")

	result, err := engine.Convert(context.Background(), input, output)

	require.NoError(t, err)
	assert.Equal(t, SerializationPlain, result.Serialization)
	doc, err := OpenSource(output)
	require.NoError(t, err)
	assert.Len(t, doc.Pages, 1)
}

func TestConvertFailures(t *testing.T) {
	validInput := func(t *testing.T) string { return writeFixture(t, blankPages(letter, letter, letter)...) }

	tests := []struct {
		name     string
		input    func(t *testing.T) string
		ctx      func() context.Context
		renderer Renderer
		encoder  Encoder
		serial   *Serializer
		kind     FailureKind
		sentinel error
		page     int
	}{
		{
			name:     "missing input",
			input:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.pdf") },
			kind:     KindInputNotFound,
			sentinel: ErrInputNotFound,
		},
		{
			name: "garbage input",
			input: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "garbage.pdf")
				require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0o644))
				return path
			},
			kind:     KindDecode,
			sentinel: ErrDecode,
		},
		{
			name:     "render failure on page 2",
			input:    validInput,
			renderer: &stubRenderer{failPage: 2},
			kind:     KindDecode,
			sentinel: ErrDecode,
			page:     2,
		},
		{
			name:     "renderer disagrees on page count",
			input:    validInput,
			renderer: countingRenderer{&stubRenderer{pages: 2}},
			kind:     KindDecode,
			sentinel: ErrDecode,
		},
		{
			name:     "both quality levels fail",
			input:    validInput,
			encoder:  &scriptedEncoder{failQualities: map[int]bool{92: true, 80: true}},
			kind:     KindEncode,
			sentinel: ErrEncode,
			page:     1,
		},
		{
			name:  "both serializations fail",
			input: validInput,
			serial: &Serializer{Optimize: func(io.ReadSeeker, io.Writer, *model.Configuration) error {
				return errors.New("optimizer broke")
			}},
			kind:     KindSerialization,
			sentinel: ErrSerialization,
		},
		{
			name:  "canceled before first page",
			input: validInput,
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			kind:     KindCanceled,
			sentinel: ErrCanceled,
			page:     1,
		},
		{
			name:     "renderer panics",
			input:    validInput,
			renderer: &stubRenderer{panicAt: 3},
			kind:     KindUnexpected,
			sentinel: ErrUnexpected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outDir := filepath.Join(t.TempDir(), "out")
			output := filepath.Join(outDir, "inverted.pdf")

			renderer := tt.renderer
			if renderer == nil {
				renderer = &stubRenderer{}
			}
			encoder := tt.encoder
			if encoder == nil {
				encoder = &scriptedEncoder{}
			}
			opts := []Option{WithRenderer(renderer), WithEncoder(encoder)}
			if tt.serial != nil {
				// A directory at the output path also defeats the plain write.
				require.NoError(t, os.MkdirAll(output, 0o755))
				opts = append(opts, WithSerializer(*tt.serial))
			}
			ctx := context.Background()
			if tt.ctx != nil {
				ctx = tt.ctx()
			}

			engine := newTestEngine(t, 600, opts...)
			_, err := engine.Convert(ctx, tt.input(t), output)

			require.Error(t, err)
			var convErr *ConversionError
			require.ErrorAs(t, err, &convErr)
			assert.Equal(t, tt.kind, convErr.Kind)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.page, convErr.Page)
			assert.False(t, engine.Invert(ctx, tt.input(t), output))

			if tt.serial != nil {
				info, statErr := os.Stat(output)
				require.NoError(t, statErr)
				assert.True(t, info.IsDir())
				entries, readErr := os.ReadDir(outDir)
				require.NoError(t, readErr)
				assert.Len(t, entries, 1)
				return
			}
			assertNoOutput(t, output)
		})
	}
}

func TestInvertReportsSuccess(t *testing.T) {
	input := writeFixture(t, blankPages(letter)...)
	engine := newTestEngine(t, 600, WithRenderer(&stubRenderer{}), WithEncoder(&scriptedEncoder{}))

	assert.True(t, engine.Invert(context.Background(), input, filepath.Join(t.TempDir(), "out.pdf")))
}

func TestNewEngineDefaultsDPI(t *testing.T) {
	engine := newTestEngine(t, 0, WithEncoder(&scriptedEncoder{}))
	assert.Equal(t, DefaultDPI, engine.DPI())
}

func TestConversionErrorMessage(t *testing.T) {
	err := failure(KindEncode, 4, StepCompress, errors.New("boom"))
	assert.Equal(t, "encode: page 4: compress: boom", err.Error())
	assert.Equal(t, KindUnexpected, KindOf(errors.New("plain")))
}
