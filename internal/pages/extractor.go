// Package pages turns document bytes into classified, line-numbered page
// records. It never fails a document outright: unreadable input becomes a
// single page-1 record with method none and the error attached.
package pages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// Source formats the extractor can read.
const (
	FormatPDF  = "pdf"
	FormatText = "txt"
)

// Per-page error codes.
const (
	PageErrOCRUnavailable = models.WarnOCRUnavailable
	PageErrOCRFailed      = "OCR_FAILED"
	PageErrTextLayer      = "TEXT_LAYER_FAILED"
)

// Request describes one document to extract.
type Request struct {
	Data   []byte
	Format string
	Mode   models.JobMode
	// ExpectedPages is used when the text layer cannot count pages itself.
	ExpectedPages int
	// BeforeOCR is called once, before the first page is sent to OCR.
	BeforeOCR func(pages []int)
}

// Result is the page-level output of one document.
type Result struct {
	Pages         []models.PageRecord
	PageCount     int
	SplitStrategy models.SplitStrategy
	Errors        []models.PipelineError
}

// Extractor reads text, splits it into pages, classifies each page and
// applies OCR according to the job mode.
type Extractor struct {
	pdf       TextLayer
	plain     TextLayer
	ocr       OCREngine
	splitters []Splitter
	logger    *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

func WithPDFTextLayer(l TextLayer) Option   { return func(e *Extractor) { e.pdf = l } }
func WithPlainTextLayer(l TextLayer) Option { return func(e *Extractor) { e.plain = l } }
func WithOCR(o OCREngine) Option            { return func(e *Extractor) { e.ocr = o } }
func WithSplitters(s ...Splitter) Option    { return func(e *Extractor) { e.splitters = s } }
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExtractor returns an Extractor with pdfcpu and plain-text layers, no OCR
// and the default splitters unless overridden.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		pdf:       PDFTextLayer{},
		plain:     PlainTextLayer{},
		ocr:       NoOCR{},
		splitters: DefaultSplitters,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract never returns an error. Failures to read the document at all,
// including panics inside the text layer, yield a single page-1 none record.
func (e *Extractor) Extract(ctx context.Context, req Request) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("page extraction panicked", "error", r)
			res = failedResult(fmt.Sprintf("extraction panicked: %v", r))
		}
	}()

	var layer TextLayer
	switch req.Format {
	case FormatPDF:
		layer = e.pdf
	case FormatText:
		layer = e.plain
	default:
		return failedResult(fmt.Sprintf("no text layer for format %q", req.Format))
	}

	doc, err := layer.ExtractText(ctx, req.Data)
	if err != nil {
		e.logger.Warn("text layer failed", "format", req.Format, "error", err)
		return failedResult(err.Error())
	}

	pageCount := doc.PageCount
	if req.Format != FormatPDF && doc.Markers() == 0 && req.ExpectedPages > 0 {
		pageCount = req.ExpectedPages
	}
	if pageCount < 1 {
		pageCount = 1
	}

	texts, strategy := SplitPages(doc.Text, pageCount, e.splitters)
	res = &Result{
		PageCount:     pageCount,
		SplitStrategy: strategy,
		Pages:         make([]models.PageRecord, 0, len(texts)),
		Errors:        []models.PipelineError{},
	}
	if strategy == models.SplitApproximate {
		res.Errors = append(res.Errors, models.PipelineError{
			Code: models.WarnPageSplitApproximate,
			Message: fmt.Sprintf("%d page-break markers for %d pages; pages are equal-length character slices and line citations are approximate",
				doc.Markers(), pageCount),
		})
	}

	for i, text := range texts {
		rec := NewPageRecord(i+1, strings.TrimSpace(text))
		if msg, ok := doc.PageErrors[i+1]; ok {
			rec.Errors = append(rec.Errors, PageErrTextLayer+": "+msg)
		}
		res.Pages = append(res.Pages, rec)
	}

	e.applyOCR(ctx, req, res)
	return res
}

// ocrTargets picks pages for OCR by mode: ocr_only takes every page,
// auto takes pages with no usable text and hybrid also takes partial pages.
func ocrTargets(mode models.JobMode, pages []models.PageRecord) []int {
	var out []int
	for _, p := range pages {
		switch mode {
		case models.JobModeOCROnly:
			out = append(out, p.Page)
		case models.JobModeHybrid:
			if p.Method == models.PageMethodNone || p.Confidence <= ConfidencePartial {
				out = append(out, p.Page)
			}
		case models.JobModeTextOnly:
		default:
			if p.Method == models.PageMethodNone {
				out = append(out, p.Page)
			}
		}
	}
	return out
}

func (e *Extractor) applyOCR(ctx context.Context, req Request, res *Result) {
	targets := ocrTargets(req.Mode, res.Pages)
	if len(targets) == 0 {
		return
	}

	if req.Format != FormatPDF || !e.ocr.Available() {
		for _, n := range targets {
			rec := &res.Pages[n-1]
			rec.Errors = append(rec.Errors, PageErrOCRUnavailable)
		}
		return
	}

	path, cleanup, err := writeTemp(req.Data)
	if err != nil {
		for _, n := range targets {
			rec := &res.Pages[n-1]
			rec.Errors = append(rec.Errors, PageErrOCRFailed+": "+err.Error())
		}
		return
	}
	defer cleanup()

	if req.BeforeOCR != nil {
		req.BeforeOCR(targets)
	}

	for _, n := range targets {
		rec := &res.Pages[n-1]
		if ctx.Err() != nil {
			rec.Errors = append(rec.Errors, PageErrOCRFailed+": "+ctx.Err().Error())
			continue
		}

		text, err := e.ocr.OCRPage(ctx, path, n)
		if err != nil {
			e.logger.Warn("ocr failed", "page", n, "error", err)
			rec.Errors = append(rec.Errors, PageErrOCRFailed+": "+err.Error())
			continue
		}

		ocrRec := NewPageRecord(n, strings.TrimSpace(text))
		if ocrRec.Method != models.PageMethodNone {
			ocrRec.Method = models.PageMethodOCR
		}
		better := ocrRec.Confidence > rec.Confidence ||
			(req.Mode == models.JobModeOCROnly && ocrRec.Confidence >= rec.Confidence)
		if better {
			ocrRec.Errors = append(ocrRec.Errors, rec.Errors...)
			*rec = ocrRec
		}
	}
}

func failedResult(msg string) *Result {
	return &Result{
		PageCount:     1,
		SplitStrategy: models.SplitNative,
		Pages: []models.PageRecord{{
			Page:       1,
			Method:     models.PageMethodNone,
			Confidence: ConfidenceNone,
			Text:       "",
			Lines:      []models.PageLine{},
			Errors:     []string{msg},
		}},
		Errors: []models.PipelineError{{Code: string(models.ErrCodeExtractionFailed), Message: msg}},
	}
}

func writeTemp(data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "steelsched-src-*.pdf")
	if err != nil {
		return "", nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}
