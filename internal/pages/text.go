package pages

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrEmptyDocument is returned when the source has no bytes at all.
var ErrEmptyDocument = errors.New("pages: empty document")

// TextDocument is the machine-readable text of a whole document. Pages in
// Text are separated by PageBreak when the layer knows where they are.
type TextDocument struct {
	Text      string
	PageCount int
	// PageErrors holds per-page read failures, keyed by 1-based page number.
	PageErrors map[int]string
}

// Markers returns how many page-break markers Text contains.
func (d *TextDocument) Markers() int {
	return strings.Count(d.Text, PageBreak)
}

// TextLayer extracts aggregate text from document bytes.
type TextLayer interface {
	ExtractText(ctx context.Context, data []byte) (*TextDocument, error)
}

// PDFTextLayer reads the text operators of every page content stream with
// pdfcpu and joins pages with PageBreak.
type PDFTextLayer struct{}

func (PDFTextLayer) ExtractText(ctx context.Context, data []byte) (*TextDocument, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	doc := &TextDocument{PageCount: pctx.PageCount, PageErrors: map[int]string{}}
	texts := make([]string, pctx.PageCount)
	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := pageText(pctx, pageNr)
		if err != nil {
			doc.PageErrors[pageNr] = err.Error()
			continue
		}
		texts[pageNr-1] = text
	}
	doc.Text = strings.Join(texts, PageBreak)
	return doc, nil
}

func pageText(pctx *model.Context, pageNr int) (string, error) {
	r, err := pdfcpu.ExtractPageContent(pctx, pageNr)
	if err != nil {
		return "", fmt.Errorf("page %d content: %w", pageNr, err)
	}
	if r == nil {
		return "", nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("page %d read: %w", pageNr, err)
	}
	return contentText(data), nil
}

// PlainTextLayer treats bytes as UTF-8 text with form feeds as page breaks.
// Without form feeds the page count comes from the caller's expectation.
type PlainTextLayer struct{}

func (PlainTextLayer) ExtractText(_ context.Context, data []byte) (*TextDocument, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("�"))
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return &TextDocument{
		Text:       text,
		PageCount:  strings.Count(text, PageBreak) + 1,
		PageErrors: map[int]string{},
	}, nil
}
