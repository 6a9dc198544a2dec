package pages

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/steelsched/internal/config"
)

// ErrOCRUnavailable is returned by engines that cannot run in this deployment.
var ErrOCRUnavailable = errors.New("pages: OCR unavailable")

// OCREngine recognizes text on rendered PDF pages.
type OCREngine interface {
	Available() bool
	// OCRPage returns the recognized text of one 1-based page of a PDF.
	OCRPage(ctx context.Context, pdfPath string, page int) (string, error)
}

// NoOCR is the engine used when OCR is disabled. Pages that need it stay
// classified none so the review policy still sees them.
type NoOCR struct{}

func (NoOCR) Available() bool { return false }

func (NoOCR) OCRPage(context.Context, string, int) (string, error) {
	return "", ErrOCRUnavailable
}

// Runner lets tests stub external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		slog.Error("exec failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		slog.Debug("exec ok",
			"cmd", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

// TesseractConfig names the binaries and settings for TesseractOCR.
type TesseractConfig struct {
	Pdftoppm  string // default "pdftoppm"
	Tesseract string // default "tesseract"
	Lang      string // default "eng"
	DPI       int    // default 300
}

// TesseractOCR rasterizes a page with pdftoppm and reads it with tesseract.
type TesseractOCR struct {
	cfg    TesseractConfig
	runner Runner
}

// NewTesseractOCR fills config defaults. A nil runner uses ExecRunner.
func NewTesseractOCR(cfg TesseractConfig, runner Runner) *TesseractOCR {
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &TesseractOCR{cfg: cfg, runner: runner}
}

func (t *TesseractOCR) Available() bool { return true }

func (t *TesseractOCR) OCRPage(ctx context.Context, pdfPath string, page int) (string, error) {
	tmpDir, err := os.MkdirTemp("", "steelsched-ocr-*")
	if err != nil {
		return "", fmt.Errorf("ocr temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	p := strconv.Itoa(page)
	// pdftoppm -f N -l N -r DPI -png -singlefile in.pdf prefix → prefix.png
	if _, errb, err := t.runner.Run(ctx, t.cfg.Pdftoppm,
		"-f", p, "-l", p, "-r", strconv.Itoa(t.cfg.DPI), "-png", "-singlefile", pdfPath, prefix); err != nil {
		return "", fmt.Errorf("pdftoppm page %d: %w: %s", page, err, truncate(string(errb), 512))
	}

	// tesseract <img> stdout -l <lang>
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, prefix+".png", "stdout", "-l", t.cfg.Lang)
	if err != nil {
		return "", fmt.Errorf("tesseract page %d: %w: %s", page, err, truncate(string(errb), 512))
	}
	return string(out), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// FromConfig returns an Extractor that uses TesseractOCR when OCR is enabled
// and NoOCR otherwise.
func FromConfig(cfg config.OCRConfig, logger *slog.Logger) *Extractor {
	opts := []Option{WithLogger(logger)}
	if cfg.Enabled {
		opts = append(opts, WithOCR(NewTesseractOCR(TesseractConfig{
			Pdftoppm:  cfg.Pdftoppm,
			Tesseract: cfg.Tesseract,
			Lang:      cfg.Lang,
			DPI:       cfg.DPI,
		}, nil)))
	}
	return NewExtractor(opts...)
}
