// Package metadata reads embedded EXIF metadata from stored images.
package metadata

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

const NotAvailable = "N/A"

const (
	DisclaimerNoEXIF    = "⚠ NO EXIF METADATA FOUND - This is common and expected. Reasons: Social media stripping, screenshot, edited image, or camera settings. Missing EXIF is NOT suspicious."
	DisclaimerFound     = "⚠ EXIF DATA FOUND - Remember: EXIF can be edited, deleted, or fabricated. Use as informational guidance only. Verify all findings independently."
	DisclaimerGPS       = "⚠ GPS coordinates can be edited or spoofed. Verify independently."
	DisclaimerCamera    = "⚠ Camera information can be modified or faked."
	DisclaimerTimestamp = "⚠ Timestamps can be altered. Verify with other sources."
)

// GPSCoordinates always carries both halves of the pair.
type GPSCoordinates struct {
	Latitude   float64 `json:"latitude" yaml:"latitude"`
	Longitude  float64 `json:"longitude" yaml:"longitude"`
	Disclaimer string  `json:"disclaimer" yaml:"disclaimer"`
}

type CameraInfo struct {
	Make       string `json:"make" yaml:"make"`
	Model      string `json:"model" yaml:"model"`
	Lens       string `json:"lens" yaml:"lens"`
	Disclaimer string `json:"disclaimer" yaml:"disclaimer"`
}

type EXIFData struct {
	Available           bool              `json:"available" yaml:"available"`
	GPS                 *GPSCoordinates   `json:"gps_coordinates" yaml:"gps_coordinates"`
	Camera              *CameraInfo       `json:"camera_info" yaml:"camera_info"`
	Timestamp           string            `json:"timestamp" yaml:"timestamp"`
	TimestampDisclaimer string            `json:"timestamp_disclaimer,omitempty" yaml:"timestamp_disclaimer,omitempty"`
	Software            string            `json:"software" yaml:"software"`
	RawTags             map[string]string `json:"raw_tags" yaml:"raw_tags"`
	Disclaimer          string            `json:"disclaimer" yaml:"disclaimer"`
}

// rawTagNames is the allow-list of tags copied verbatim into RawTags.
var rawTagNames = []struct {
	label string
	field exif.FieldName
}{
	{"Image Make", exif.Make},
	{"Image Model", exif.Model},
	{"EXIF DateTimeOriginal", exif.DateTimeOriginal},
	{"GPS GPSLatitude", exif.GPSLatitude},
	{"GPS GPSLongitude", exif.GPSLongitude},
	{"Image Software", exif.Software},
	{"EXIF LensModel", exif.LensModel},
	{"Image Orientation", exif.Orientation},
}

// ExtractionError builds the disclaimer used when the file cannot be read.
func ExtractionError(err error) string {
	return fmt.Sprintf("⚠ EXIF extraction error: %v. File may be corrupted or unsupported format.", err)
}

// Extract reads EXIF from the file at path. It never fails: problems are
// reported through Disclaimer.
func Extract(path string) EXIFData {
	f, err := os.Open(path)
	if err != nil {
		return EXIFData{RawTags: map[string]string{}, Disclaimer: ExtractionError(errors.Cause(err))}
	}
	defer f.Close()
	return ExtractReader(f)
}

func ExtractReader(r io.Reader) EXIFData {
	out := EXIFData{RawTags: map[string]string{}}

	// Non-critical decode errors still return usable tags.
	x, _ := exif.Decode(r)
	if x == nil || !hasTags(x) {
		// Formats without an EXIF segment land here, as do stripped JPEGs.
		out.Disclaimer = DisclaimerNoEXIF
		return out
	}
	out.Available = true

	for _, rt := range rawTagNames {
		if tag, err := x.Get(rt.field); err == nil {
			if v := tagString(tag); v != "" {
				out.RawTags[rt.label] = v
			}
		}
	}

	if lat, lon, ok := gps(x); ok {
		out.GPS = &GPSCoordinates{Latitude: lat, Longitude: lon, Disclaimer: DisclaimerGPS}
	}

	mk, _ := stringTag(x, exif.Make)
	model, _ := stringTag(x, exif.Model)
	lens, _ := stringTag(x, exif.LensModel)
	out.Camera = &CameraInfo{
		Make:       orNA(mk),
		Model:      orNA(model),
		Lens:       orNA(lens),
		Disclaimer: DisclaimerCamera,
	}

	if ts, err := stringTag(x, exif.DateTimeOriginal); err == nil && ts != "" {
		out.Timestamp = ts
	} else if ts, err := stringTag(x, exif.DateTime); err == nil && ts != "" {
		out.Timestamp = ts
	}
	if out.Timestamp != "" {
		out.TimestampDisclaimer = DisclaimerTimestamp
	}

	if sw, err := stringTag(x, exif.Software); err == nil {
		out.Software = sw
	}

	out.Disclaimer = DisclaimerFound
	return out
}

// tagCounter stops the walk at the first tag it sees.
type tagCounter struct{ n int }

var errStopWalk = errors.New("stop walk")

func (c *tagCounter) Walk(name exif.FieldName, tag *tiff.Tag) error {
	c.n++
	return errStopWalk
}

func hasTags(x *exif.Exif) bool {
	c := &tagCounter{}
	_ = x.Walk(c)
	return c.n > 0
}

// ToDecimal converts degrees/minutes/seconds to signed decimal degrees,
// rounded to 6 places. Southern and western references are negative.
func ToDecimal(degrees, minutes, seconds float64, ref string) float64 {
	dec := degrees + minutes/60 + seconds/3600
	switch strings.ToUpper(strings.TrimSpace(ref)) {
	case "S", "W":
		dec = -dec
	}
	return math.Round(dec*1e6) / 1e6
}

func gps(x *exif.Exif) (float64, float64, bool) {
	lat, err := coordinate(x, exif.GPSLatitude, exif.GPSLatitudeRef)
	if err != nil {
		return 0, 0, false
	}
	lon, err := coordinate(x, exif.GPSLongitude, exif.GPSLongitudeRef)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

func coordinate(x *exif.Exif, field, refField exif.FieldName) (float64, error) {
	tag, err := x.Get(field)
	if err != nil {
		return 0, err
	}
	if tag.Count < 3 {
		return 0, errors.Errorf("%s has %d values", field, tag.Count)
	}
	var dms [3]float64
	for i := range dms {
		num, den, err := tag.Rat2(i)
		if err != nil {
			return 0, errors.Wrapf(err, "%s value %d", field, i)
		}
		if den == 0 {
			return 0, errors.Errorf("%s value %d has zero denominator", field, i)
		}
		dms[i] = float64(num) / float64(den)
	}
	ref, err := stringTag(x, refField)
	if err != nil || ref == "" {
		return 0, errors.Errorf("%s has no %s", field, refField)
	}
	return ToDecimal(dms[0], dms[1], dms[2], ref), nil
}

func stringTag(x *exif.Exif, field exif.FieldName) (string, error) {
	tag, err := x.Get(field)
	if err != nil {
		return "", err
	}
	s, err := tag.StringVal()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// tagString renders a tag the way an analyst would read it, e.g. "[40, 26, 46]"
// for a rational triple.
func tagString(tag *tiff.Tag) string {
	switch tag.Format() {
	case tiff.StringVal:
		s, _ := tag.StringVal()
		return strings.TrimSpace(s)
	case tiff.RatVal:
		parts := make([]string, 0, tag.Count)
		for i := 0; i < int(tag.Count); i++ {
			num, den, err := tag.Rat2(i)
			if err != nil {
				break
			}
			if den == 1 || den == 0 {
				parts = append(parts, strconv.FormatInt(num, 10))
			} else {
				parts = append(parts, fmt.Sprintf("%d/%d", num, den))
			}
		}
		if len(parts) == 1 {
			return parts[0]
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case tiff.IntVal:
		parts := make([]string, 0, tag.Count)
		for i := 0; i < int(tag.Count); i++ {
			v, err := tag.Int64(i)
			if err != nil {
				break
			}
			parts = append(parts, strconv.FormatInt(v, 10))
		}
		return strings.Join(parts, ", ")
	default:
		return strings.Trim(tag.String(), `"`)
	}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotAvailable
	}
	return s
}
