// Package ocr extracts printable text from images with an offline engine.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"

	"github.com/shii9/ipwnedyou/internal/utils"
)

const (
	Method            = "Tesseract OCR (Offline)"
	ConfidenceUnknown = "Unknown"

	DisclaimerFound  = "⚠ OCR ACCURACY NOT GUARANTEED - Text extraction is informational only. Results may contain errors, misreads, or artifacts. Verify all extracted text manually. Low-quality images produce unreliable results."
	DisclaimerNoText = "⚠ NO TEXT DETECTED - Image may not contain readable text, or text quality is too poor for OCR. This is common and not suspicious."

	InstallURL = "https://github.com/UB-Mannheim/tesseract/wiki"
)

var ErrEngineUnavailable = errors.New("tesseract is not installed or it's not in your PATH")

// Engine turns the image at path into raw text.
type Engine interface {
	Extract(ctx context.Context, path string) (string, error)
}

type Result struct {
	TextFound     bool   `json:"text_found" yaml:"text_found"`
	ExtractedText string `json:"extracted_text" yaml:"extracted_text"`
	Confidence    string `json:"confidence" yaml:"confidence"`
	Method        string `json:"method" yaml:"method"`
	Disclaimer    string `json:"disclaimer" yaml:"disclaimer"`
}

func FailureDisclaimer(err error) string {
	return fmt.Sprintf("⚠ OCR FAILED: %v. Possible reasons: Tesseract not installed, unsupported image format, or corrupted file. Install Tesseract from: %s", err, InstallURL)
}

// Run executes engine on path and wraps the outcome with the matching
// disclaimer. Engine errors never escape.
func Run(ctx context.Context, engine Engine, path string) Result {
	res := Result{Confidence: ConfidenceUnknown, Method: Method}
	text, err := engine.Extract(ctx, path)
	if err != nil {
		res.Disclaimer = FailureDisclaimer(err)
		return res
	}
	text = strings.TrimSpace(text)
	if text == "" {
		res.Disclaimer = DisclaimerNoText
		return res
	}
	res.TextFound = true
	res.ExtractedText = text
	res.Disclaimer = DisclaimerFound
	return res
}

// Tesseract runs the tesseract command line tool.
type Tesseract struct {
	binary   string
	language string
	timeout  time.Duration
	log      *zap.Logger
}

func NewTesseract(binary, language string, timeout time.Duration, log *zap.Logger) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &Tesseract{binary: binary, language: language, timeout: timeout, log: utils.OrNop(log)}
}

func (t *Tesseract) Extract(ctx context.Context, path string) (string, error) {
	bin, err := exec.LookPath(t.binary)
	if err != nil {
		return "", ErrEngineUnavailable
	}

	input, cleanup, err := toRGB(path)
	if err != nil {
		return "", err
	}
	defer cleanup()

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, input, "stdout", "-l", t.language)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.log.Debug("tesseract failed", zap.String("path", path), zap.String("stderr", stderr.String()), zap.Error(err))
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", errors.Errorf("tesseract: %s", firstLine(msg))
		}
		return "", errors.Wrap(err, "tesseract")
	}
	return stdout.String(), nil
}

// toRGB decodes the image and writes an RGB PNG copy to a temp file so every
// accepted upload format reaches the engine the same way.
func toRGB(path string) (string, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, errors.Wrap(err, "open image")
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return "", nil, errors.Wrap(err, "decode image")
	}
	rgba := image.NewRGBA(src.Bounds())
	draw.Draw(rgba, rgba.Bounds(), src, src.Bounds().Min, draw.Src)

	tmp, err := os.CreateTemp("", "ipwnedyou-ocr-*.png")
	if err != nil {
		return "", nil, errors.Wrap(err, "create temp image")
	}
	cleanup := func() { os.Remove(tmp.Name()) }
	if err := png.Encode(tmp, rgba); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, errors.Wrap(err, "encode temp image")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, errors.Wrap(err, "write temp image")
	}
	return tmp.Name(), cleanup, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
