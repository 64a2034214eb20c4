package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pdfinvert/converter/raster"
)

const (
	msgNoFile       = "No file selected"
	msgNotPDF       = "Please upload a PDF file"
	msgTooLarge     = "File is too large"
	msgProcessing   = "Error processing PDF file"
	multipartMemory = 32 << 20
)

type indexData struct {
	Error string
	DPI   int
	MaxMB int64
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	s.renderIndex(w, http.StatusOK, "")
}

func (s *Server) renderIndex(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	data := indexData{
		Error: message,
		DPI:   s.opts.DPI,
		MaxMB: s.opts.MaxUploadBytes / (1024 * 1024),
	}
	if err := s.tmpl.Execute(w, data); err != nil {
		s.logger.Error().Err(err).Msg("render index failed")
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.renderIndex(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		s.renderIndex(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil || header.Filename == "" {
		s.renderIndex(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		s.renderIndex(w, http.StatusBadRequest, msgNotPDF)
		return
	}

	name := sanitizeFilename(header.Filename)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	docID := uuid.NewString()
	downloadName := stem + "_inverted.pdf"
	annotateUpload(r, docID, name, header.Size)
	inputPath := filepath.Join(s.opts.UploadDir, docID+"_"+name)
	outputPath := filepath.Join(s.opts.OutputDir, docID+"_"+downloadName)

	defer s.cleanup(docID, inputPath, outputPath)

	if err := saveUpload(file, inputPath); err != nil {
		s.logger.Error().Str("document_id", docID).Err(err).Msg("staging upload failed")
		s.renderIndex(w, http.StatusInternalServerError, msgProcessing)
		return
	}
	s.logger.Info().Str("document_id", docID).Str("filename", name).Int64("bytes", header.Size).Msg("upload received")

	ctx := r.Context()
	if s.opts.ConversionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ConversionTimeout)
		defer cancel()
	}

	startedAt := time.Now()
	result, err := s.converter.Convert(ctx, inputPath, outputPath)
	s.metrics.observeConversion(result, err, time.Since(startedAt))
	if err != nil {
		trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("conversion.failure", raster.KindOf(err).String()))
		s.logger.Error().Str("document_id", docID).Str("kind", raster.KindOf(err).String()).Err(err).Msg("conversion failed")
		s.renderIndex(w, http.StatusInternalServerError, msgProcessing)
		return
	}

	if err := sendAttachment(w, outputPath, downloadName); err != nil {
		s.logger.Error().Str("document_id", docID).Err(err).Msg("sending output failed")
		s.renderIndex(w, http.StatusInternalServerError, msgProcessing)
		return
	}
	s.logger.Info().Str("document_id", docID).Int("pages", result.Pages).Int64("bytes", result.OutputBytes).Msg("output sent")
}

func saveUpload(src io.Reader, path string) error {
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create staged file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to write staged file: %w", err)
	}
	return dst.Close()
}

// sendAttachment streams path to w. Headers are only written once the file is
// open, so an error before that can still be reported as a page.
func sendAttachment(w http.ResponseWriter, path, downloadName string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat output: %w", err)
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": downloadName}))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
	return nil
}

func (s *Server) cleanup(docID string, paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Str("document_id", docID).Str("path", path).Err(err).Msg("cleanup failed")
		}
	}
}

// sanitizeFilename reduces an uploaded PDF filename to a safe base name:
// directory parts are dropped, spaces become underscores, and only ASCII
// letters, digits, '-', '_' and '.' survive in the stem. Leading dots are
// removed and the extension is always ".pdf".
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	var b strings.Builder
	for _, r := range stem {
		switch {
		case r == ' ':
			b.WriteByte('_')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		}
	}

	cleaned := strings.TrimLeft(b.String(), ".")
	if cleaned == "" {
		cleaned = "document"
	}
	return cleaned + ".pdf"
}
