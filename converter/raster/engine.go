package raster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Pipeline steps, used in log events and ConversionError.Step.
const (
	StepOpen      = "open"
	StepRender    = "render"
	StepInvert    = "invert"
	StepCompress  = "compress"
	StepInsert    = "insert"
	StepSerialize = "serialize"
)

// Engine implements the raster inversion pipeline: every page is rendered,
// color-inverted, compressed to JPEG and placed on a page of the same size in
// a new document. One Convert call runs strictly sequentially; separate calls
// share no mutable state.
type Engine struct {
	dpi        int
	maxDim     int
	policy     ResolutionPolicy
	renderer   Renderer
	encoder    Encoder
	serializer Serializer
	logger     *log.Logger
	tracer     trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithRenderer sets the rasterization backend.
func WithRenderer(r Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

// WithEncoder sets the JPEG encoder.
func WithEncoder(enc Encoder) Option {
	return func(e *Engine) { e.encoder = enc }
}

// WithPolicy replaces DefaultResolutionPolicy.
func WithPolicy(p ResolutionPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithSerializer replaces the pdfcpu-backed serializer.
func WithSerializer(s Serializer) Option {
	return func(e *Engine) { e.serializer = s }
}

// WithMaxDimension overrides MaxRasterDimension.
func WithMaxDimension(px int) Option {
	return func(e *Engine) { e.maxDim = px }
}

// WithLogger sets the logger for pipeline events.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Result describes a successful conversion.
type Result struct {
	DocumentID    string
	Pages         int
	InputBytes    int64
	OutputBytes   int64
	SizeRatio     float64
	SizeVerdict   SizeVerdict
	Serialization Serialization
	FallbackPages []int
	Duration      time.Duration
}

// NewEngine creates a raster engine rendering at the requested dpi. A
// non-positive dpi selects DefaultDPI.
func NewEngine(dpi int, opts ...Option) (*Engine, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	e := &Engine{
		dpi:        dpi,
		maxDim:     MaxRasterDimension,
		policy:     DefaultResolutionPolicy,
		renderer:   FitzRenderer{},
		serializer: NewSerializer(),
		tracer:     otel.Tracer("pdfinvert/raster"),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.encoder == nil {
		enc, err := NewEncoder()
		if err != nil {
			return nil, fmt.Errorf("failed to create encoder: %w", err)
		}
		e.encoder = enc
	}
	if e.logger == nil {
		e.logger = &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
	}
	return e, nil
}

// DPI returns the requested rendering resolution.
func (e *Engine) DPI() int {
	return e.dpi
}

// Invert runs Convert and reports only whether an output was produced.
func (e *Engine) Invert(ctx context.Context, inputPath, outputPath string) bool {
	_, err := e.Convert(ctx, inputPath, outputPath)
	return err == nil
}

// Convert renders inputPath into an inverted copy at outputPath. Any returned
// error is a *ConversionError, and no file is left at outputPath when it is
// non-nil.
func (e *Engine) Convert(ctx context.Context, inputPath, outputPath string) (result Result, err error) {
	startedAt := time.Now()
	docID := uuid.NewString()

	ctx, span := e.tracer.Start(ctx, "raster.convert")
	span.SetAttributes(
		attribute.String("document.id", docID),
		attribute.Int("raster.dpi", e.dpi),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = failure(KindUnexpected, 0, "panic", fmt.Errorf("%v", r))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, KindOf(err).String())
			e.logger.Error().Str("document_id", docID).Str("kind", KindOf(err).String()).Err(err).Msg("conversion failed")
			return
		}
		span.SetStatus(codes.Ok, "converted")
	}()

	e.logger.Info().Str("document_id", docID).Str("input", inputPath).Str("output", outputPath).Int("dpi", e.dpi).Msg("conversion started")

	if _, statErr := os.Stat(inputPath); statErr != nil {
		return Result{}, failure(KindInputNotFound, 0, StepOpen, statErr)
	}

	source, err := OpenSource(inputPath)
	if err != nil {
		return Result{}, failure(KindDecode, 0, StepOpen, err)
	}

	doc, err := e.renderer.Open(inputPath)
	if err != nil {
		return Result{}, failure(KindDecode, 0, StepOpen, err)
	}
	defer doc.Close()

	if counter, ok := doc.(pageCounter); ok && counter.PageCount() != len(source.Pages) {
		return Result{}, failure(KindDecode, 0, StepOpen,
			fmt.Errorf("renderer sees %d pages, parser sees %d", counter.PageCount(), len(source.Pages)))
	}

	span.SetAttributes(attribute.Int("document.pages", len(source.Pages)))
	e.logger.Info().Str("document_id", docID).Int("pages", len(source.Pages)).Int64("bytes", source.Size).Msg("source opened")

	assembler := NewAssembler(source.Pages[0])
	var fallbackPages []int
	for i, geometry := range source.Pages {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, failure(KindCanceled, i+1, StepRender, ctxErr)
		}

		fellBack, pageErr := e.convertPage(ctx, docID, doc, assembler, i, geometry)
		if pageErr != nil {
			return Result{}, pageErr
		}
		if fellBack {
			fallbackPages = append(fallbackPages, i+1)
		}
	}

	raw, err := assembler.Bytes()
	if err != nil {
		return Result{}, failure(KindSerialization, 0, StepSerialize, err)
	}

	serialization, outputBytes, err := e.serializer.Save(raw, outputPath)
	if err != nil {
		return Result{}, failure(KindSerialization, 0, StepSerialize, err)
	}
	if serialization == SerializationPlain {
		e.logger.Warn().Str("document_id", docID).Str("step", StepSerialize).Msg("optimized write failed, wrote document without optimization")
	}

	result = Result{
		DocumentID:    docID,
		Pages:         assembler.PageCount(),
		InputBytes:    source.Size,
		OutputBytes:   outputBytes,
		Serialization: serialization,
		FallbackPages: fallbackPages,
		Duration:      time.Since(startedAt),
	}
	if source.Size > 0 {
		result.SizeRatio = float64(outputBytes) / float64(source.Size)
	}
	result.SizeVerdict = ClassifySizeRatio(result.SizeRatio)
	e.logSizeRatio(docID, result)

	e.logger.Info().Str("document_id", docID).Int("pages", result.Pages).Int64("bytes", outputBytes).
		Str("serialization", string(serialization)).Dur("duration", result.Duration).Msg("conversion finished")
	return result, nil
}

// convertPage runs render → invert → compress → insert for one page and
// reports whether the fallback quality was used. The page raster is released
// before the next page starts.
func (e *Engine) convertPage(ctx context.Context, docID string, doc PageRenderer, assembler *Assembler, index int, geometry PageGeometry) (bool, error) {
	pageNum := index + 1
	dpi := e.policy.Effective(geometry.Area(), e.dpi)

	_, span := e.tracer.Start(ctx, "raster.page")
	span.SetAttributes(
		attribute.Int("page.number", pageNum),
		attribute.Int("page.dpi", dpi),
		attribute.Float64("page.width_pt", geometry.Width),
		attribute.Float64("page.height_pt", geometry.Height),
	)
	defer span.End()

	img, err := doc.RenderPage(index, float64(dpi))
	if err != nil {
		span.RecordError(err)
		return false, failure(KindDecode, pageNum, StepRender, err)
	}
	if img == nil || img.Bounds().Empty() {
		err = errors.New("renderer returned an empty image")
		span.RecordError(err)
		return false, failure(KindDecode, pageNum, StepRender, err)
	}
	bounds := img.Bounds()
	e.logger.Debug().Str("document_id", docID).Int("page", pageNum).Str("step", StepRender).
		Int("dpi", dpi).Int("width", bounds.Dx()).Int("height", bounds.Dy()).Msg("page rendered")

	inverted := Normalize(img)
	Invert(inverted)
	scaled := Downscale(inverted, e.maxDim)
	if scaled != inverted {
		e.logger.Info().Str("document_id", docID).Int("page", pageNum).Str("step", StepInvert).
			Int("width", scaled.Rect.Dx()).Int("height", scaled.Rect.Dy()).Msg("page downscaled")
	}

	compressed, err := compressPage(e.encoder, scaled)
	if err != nil {
		span.RecordError(err)
		return false, failure(KindEncode, pageNum, StepCompress, err)
	}
	if compressed.fellBack {
		e.logger.Warn().Str("document_id", docID).Int("page", pageNum).Str("step", StepCompress).
			Int("quality", compressed.level.Quality).Msg("primary quality failed, used fallback quality")
	}
	e.logger.Debug().Str("document_id", docID).Int("page", pageNum).Str("step", StepCompress).
		Int("quality", compressed.level.Quality).Int("bytes", len(compressed.data)).Msg("page compressed")

	if err := assembler.AddPage(geometry, compressed.data); err != nil {
		span.RecordError(err)
		return false, failure(KindUnexpected, pageNum, StepInsert, err)
	}
	return compressed.fellBack, nil
}

func (e *Engine) logSizeRatio(docID string, result Result) {
	switch result.SizeVerdict {
	case SizeMuchLarger:
		e.logger.Warn().Str("document_id", docID).Float64("size_ratio", result.SizeRatio).Msg("output much larger than expected")
	case SizeWithinRange:
		e.logger.Info().Str("document_id", docID).Float64("size_ratio", result.SizeRatio).Msg("output size within expected range")
	default:
		e.logger.Info().Str("document_id", docID).Float64("size_ratio", result.SizeRatio).Msg("output size acceptable for quality")
	}
}
