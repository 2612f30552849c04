package imageintel

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/shii9/ipwnedyou/internal/geocode"
	"github.com/shii9/ipwnedyou/internal/metadata"
	"github.com/shii9/ipwnedyou/internal/ocr"
)

type fakeOCR struct {
	text string
	err  error
}

func (f fakeOCR) Extract(ctx context.Context, path string) (string, error) {
	return f.text, f.err
}

type countingGeocoder struct {
	calls int
}

func (g *countingGeocoder) Reverse(ctx context.Context, lat, lon float64) (*geocode.Place, error) {
	g.calls++
	return nil, errors.New("unexpected call")
}

func writePNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	path := filepath.Join(dir, "img_20240101_000000_sample.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

func newAnalyzer(engine ocr.Engine, g geocode.ReverseGeocoder) *Analyzer {
	a := NewAnalyzer(engine, g, nil, nil)
	a.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return a
}

func TestReaderSHA256(t *testing.T) {
	got, err := ReaderSHA256(strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("hash = %s, want %s", got, want)
	}
}

func TestFileSHA256LargerThanBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.bin")
	data := []byte(strings.Repeat("a", 10000))
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	fromFile, err := FileSHA256(path)
	if err != nil {
		t.Fatalf("FileSHA256 failed: %v", err)
	}
	fromReader, _ := ReaderSHA256(strings.NewReader(string(data)))
	if fromFile != fromReader || len(fromFile) != 64 {
		t.Fatalf("digest mismatch: %s vs %s", fromFile, fromReader)
	}
}

func TestAnalyzePNGWithoutEXIF(t *testing.T) {
	path := writePNG(t, t.TempDir(), 4, 3)
	geo := &countingGeocoder{}
	res := newAnalyzer(fakeOCR{}, geo).Analyze(context.Background(), path)

	if res.Status != StatusComplete {
		t.Fatalf("status = %q", res.Status)
	}
	if res.Dimensions != "4 x 3 pixels" {
		t.Fatalf("dimensions = %q", res.Dimensions)
	}
	if res.FileSize <= 0 {
		t.Fatalf("file size = %d", res.FileSize)
	}
	if res.Filename != "img_20240101_000000_sample.png" {
		t.Fatalf("filename = %q", res.Filename)
	}
	if res.EXIF.Available {
		t.Fatalf("expected no EXIF")
	}
	if res.EXIF.Disclaimer != metadata.DisclaimerNoEXIF {
		t.Fatalf("exif disclaimer = %q", res.EXIF.Disclaimer)
	}
	if res.OCR.TextFound || res.OCR.Disclaimer != ocr.DisclaimerNoText {
		t.Fatalf("unexpected OCR result: %+v", res.OCR)
	}
	if geo.calls != 0 {
		t.Fatalf("geocoder called %d times without GPS", geo.calls)
	}
	if res.Location.Disclaimer != geocode.DisclaimerNoGPS {
		t.Fatalf("location = %+v", res.Location)
	}
	if len(res.ReverseSearch.Engines) != 5 || res.ReverseSearch.Engines[0].Name != "Google Lens" {
		t.Fatalf("engines = %+v", res.ReverseSearch.Engines)
	}
	want, _ := FileSHA256(path)
	if res.ReverseSearch.FileHashSHA256 != want {
		t.Fatalf("hash = %q, want %q", res.ReverseSearch.FileHashSHA256, want)
	}
	if len(res.AnalystNotes) != 6 {
		t.Fatalf("analyst notes = %v", res.AnalystNotes)
	}
	if res.OverallDisclaimer != OverallDisclaimer {
		t.Fatalf("unexpected overall disclaimer")
	}
	if res.Timestamp != "2024-01-01 00:00:00" {
		t.Fatalf("timestamp = %q", res.Timestamp)
	}
}

func TestAnalyzeOCRFailureIsNotFatal(t *testing.T) {
	path := writePNG(t, t.TempDir(), 2, 2)
	res := newAnalyzer(fakeOCR{err: ocr.ErrEngineUnavailable}, &countingGeocoder{}).Analyze(context.Background(), path)
	if res.Status != StatusComplete {
		t.Fatalf("status = %q", res.Status)
	}
	if !strings.HasPrefix(res.OCR.Disclaimer, "⚠ OCR FAILED") {
		t.Fatalf("ocr disclaimer = %q", res.OCR.Disclaimer)
	}
}

func TestAnalyzeUnreadableImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.png")
	if err := os.WriteFile(path, []byte("not an image"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	res := newAnalyzer(fakeOCR{text: "ignored"}, &countingGeocoder{}).Analyze(context.Background(), path)

	if !strings.HasPrefix(res.Status, "Analysis Error: ") {
		t.Fatalf("status = %q", res.Status)
	}
	if !strings.HasPrefix(res.OverallDisclaimer, "⚠ CRITICAL ERROR: ") {
		t.Fatalf("overall disclaimer = %q", res.OverallDisclaimer)
	}
	if res.Dimensions != NotAvailable {
		t.Fatalf("dimensions = %q", res.Dimensions)
	}
	if res.FileSize != int64(len("not an image")) {
		t.Fatalf("file size = %d", res.FileSize)
	}
	want, _ := ReaderSHA256(strings.NewReader("not an image"))
	if res.ReverseSearch.FileHashSHA256 != want {
		t.Fatalf("hash must still be computed, got %q", res.ReverseSearch.FileHashSHA256)
	}
	if len(res.AnalystNotes) != 6 {
		t.Fatalf("analyst notes = %v", res.AnalystNotes)
	}
}

func TestAnalyzeMissingFileHash(t *testing.T) {
	res := newAnalyzer(fakeOCR{}, &countingGeocoder{}).Analyze(context.Background(), filepath.Join(t.TempDir(), "gone.png"))
	if res.ReverseSearch.FileHashSHA256 != HashFailed {
		t.Fatalf("hash = %q", res.ReverseSearch.FileHashSHA256)
	}
	if !strings.HasPrefix(res.Status, "Analysis Error: ") {
		t.Fatalf("status = %q", res.Status)
	}
}
