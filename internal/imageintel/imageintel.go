// Package imageintel runs the offline image intelligence pipeline: dimension
// probe, EXIF, OCR, optional reverse geocoding and reverse-search guidance.
package imageintel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"

	"github.com/shii9/ipwnedyou/internal/geocode"
	"github.com/shii9/ipwnedyou/internal/metadata"
	"github.com/shii9/ipwnedyou/internal/ocr"
	"github.com/shii9/ipwnedyou/internal/utils"
)

const (
	StatusComplete = "Analysis Complete"
	TimeLayout     = "2006-01-02 15:04:05"

	NotAvailable = "N/A"
	HashFailed   = "Hash calculation failed"
)

const SearchInstructions = "⚠ MANUAL VERIFICATION REQUIRED\n" +
	"Upload the image to each search engine manually.\n" +
	"Similar images DO NOT confirm original source.\n" +
	"Edited/cropped versions may appear.\n" +
	"Cross-reference results from multiple engines."

const SearchDisclaimer = "⚠ REVERSE SEARCH LIMITATIONS:\n" +
	"• This tool does NOT upload images automatically\n" +
	"• Analyst must manually upload to each search engine\n" +
	"• Similar ≠ Original source\n" +
	"• Platform identification requires additional OSINT\n" +
	"• Results may include unrelated but visually similar images"

const rule = "═══════════════════════════════════════════════════════"

const OverallDisclaimer = rule + "\n" +
	"                 OSINT ANALYST GUIDANCE                \n" +
	rule + "\n\n" +
	"⚠ HUMAN VALIDATION REQUIRED ⚠\n\n" +
	"This automated analysis provides INFORMATIONAL DATA ONLY.\n" +
	"The human analyst is the FINAL AUTHORITY on all findings.\n\n" +
	"CRITICAL REMINDERS:\n" +
	"• EXIF can be stripped, edited, or fabricated\n" +
	"• OCR accuracy is not guaranteed\n" +
	"• GPS coordinates may be spoofed\n" +
	"• Reverse search requires manual verification\n" +
	"• Similar images ≠ confirmed source\n" +
	"• Cross-reference ALL findings with independent sources\n\n" +
	"DO NOT make conclusions based solely on this analysis.\n" +
	"Always corroborate findings through multiple OSINT methods.\n" +
	rule

// AnalystNotes are appended to every analysis.
var AnalystNotes = []string{
	"✓ Review EXIF data for inconsistencies",
	"✓ Manually verify OCR-extracted text",
	"✓ Upload image to reverse search engines manually",
	"✓ Cross-reference location data with other intelligence",
	"✓ Check for signs of editing or manipulation",
	"✓ Document findings in formal intelligence report",
}

// DefaultEngines is used when no engines are configured.
var DefaultEngines = []SearchEngine{
	{Name: "Google Lens", URL: "https://lens.google.com/"},
	{Name: "Google Images", URL: "https://images.google.com/"},
	{Name: "Yandex Images", URL: "https://yandex.com/images/"},
	{Name: "Bing Visual Search", URL: "https://www.bing.com/visualsearch"},
	{Name: "TinEye", URL: "https://tineye.com/"},
}

type SearchEngine struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

type ReverseSearch struct {
	Instructions   string         `json:"instructions" yaml:"instructions"`
	Engines        []SearchEngine `json:"search_engines" yaml:"search_engines"`
	FileHashSHA256 string         `json:"file_hash_sha256" yaml:"file_hash_sha256"`
	Disclaimer     string         `json:"disclaimer" yaml:"disclaimer"`
}

type AnalysisResult struct {
	Timestamp         string            `json:"timestamp" yaml:"timestamp"`
	Filename          string            `json:"filename" yaml:"filename"`
	FileSize          int64             `json:"file_size" yaml:"file_size"`
	Dimensions        string            `json:"image_dimensions" yaml:"image_dimensions"`
	EXIF              metadata.EXIFData `json:"exif_data" yaml:"exif_data"`
	OCR               ocr.Result        `json:"ocr_results" yaml:"ocr_results"`
	Location          geocode.Result    `json:"location_data" yaml:"location_data"`
	ReverseSearch     ReverseSearch     `json:"reverse_search" yaml:"reverse_search"`
	AnalystNotes      []string          `json:"analyst_notes" yaml:"analyst_notes"`
	OverallDisclaimer string            `json:"overall_disclaimer" yaml:"overall_disclaimer"`
	Status            string            `json:"status" yaml:"status"`
}

type Analyzer struct {
	ocr      ocr.Engine
	geocoder geocode.ReverseGeocoder
	engines  []SearchEngine
	log      *zap.Logger
	now      func() time.Time
}

func NewAnalyzer(engine ocr.Engine, geocoder geocode.ReverseGeocoder, engines []SearchEngine, log *zap.Logger) *Analyzer {
	if len(engines) == 0 {
		engines = DefaultEngines
	}
	return &Analyzer{
		ocr:      engine,
		geocoder: geocoder,
		engines:  engines,
		log:      utils.OrNop(log),
		now:      time.Now,
	}
}

// Analyze runs every stage against the stored upload at path. A failed
// dimension probe marks the whole analysis as errored but the other stages
// still fill in their sub-records.
func (a *Analyzer) Analyze(ctx context.Context, path string) (res *AnalysisResult) {
	res = &AnalysisResult{
		Timestamp:  a.now().Format(TimeLayout),
		Filename:   filepath.Base(path),
		Dimensions: NotAvailable,
		EXIF:       metadata.EXIFData{RawTags: map[string]string{}},
		Status:     StatusComplete,
	}
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("image analysis panicked", zap.String("path", path), zap.Any("panic", r))
			res.Status = fmt.Sprintf("Analysis Error: %v", r)
			res.OverallDisclaimer = fmt.Sprintf("⚠ CRITICAL ERROR: %v", r)
		}
	}()

	a.log.Info("image analysis started", zap.String("file", res.Filename))

	if info, err := os.Stat(path); err == nil {
		res.FileSize = info.Size()
	}

	var critical error
	if dims := probeDimensions(path); dims.Failed() {
		critical = dims.Err
		a.log.Warn("image probe failed", zap.String("file", res.Filename), zap.Error(dims.Err))
	} else {
		res.Dimensions = dims.Value
	}

	res.EXIF = metadata.Extract(path)
	res.OCR = ocr.Run(ctx, a.ocr, path)

	if gps := res.EXIF.GPS; gps != nil {
		res.Location = geocode.Run(ctx, a.geocoder, gps.Latitude, gps.Longitude, true)
	} else {
		res.Location = geocode.Run(ctx, a.geocoder, 0, 0, false)
	}

	res.ReverseSearch = a.reverseSearch(path)
	res.AnalystNotes = append([]string(nil), AnalystNotes...)

	if critical != nil {
		res.Status = fmt.Sprintf("Analysis Error: %v", critical)
		res.OverallDisclaimer = fmt.Sprintf("⚠ CRITICAL ERROR: %v", critical)
	} else {
		res.OverallDisclaimer = OverallDisclaimer
	}

	a.log.Info("image analysis finished",
		zap.String("file", res.Filename),
		zap.String("status", res.Status),
		zap.Bool("exif", res.EXIF.Available),
		zap.Bool("ocr_text", res.OCR.TextFound),
	)
	return res
}

func probeDimensions(path string) utils.Outcome[string] {
	f, err := os.Open(path)
	if err != nil {
		return utils.Fail[string](err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return utils.Fail[string](errors.Wrap(err, "cannot identify image file"))
	}
	return utils.Ok(fmt.Sprintf("%d x %d pixels", cfg.Width, cfg.Height))
}

func (a *Analyzer) reverseSearch(path string) ReverseSearch {
	hash, err := FileSHA256(path)
	if err != nil {
		a.log.Debug("hash failed", zap.String("path", path), zap.Error(err))
		hash = HashFailed
	}
	return ReverseSearch{
		Instructions:   SearchInstructions,
		Engines:        append([]SearchEngine(nil), a.engines...),
		FileHashSHA256: hash,
		Disclaimer:     SearchDisclaimer,
	}
}

// FileSHA256 returns the hex SHA-256 digest of the file content, read in
// 4096-byte blocks.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "open for hashing")
	}
	defer f.Close()
	return ReaderSHA256(f)
}

func ReaderSHA256(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.CopyBuffer(h, r, make([]byte, 4096)); err != nil {
		return "", errors.Wrap(err, "hash content")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
