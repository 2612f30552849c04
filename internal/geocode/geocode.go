// Package geocode maps GPS coordinates to approximate place names.
package geocode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shii9/ipwnedyou/internal/utils"
)

const (
	NotAvailable  = "N/A"
	NoFullAddress = "Not Available"

	DisclaimerApproximate = "⚠ APPROXIMATE LOCATION - Geolocation accuracy varies. GPS coordinates may be edited or spoofed. Street-level accuracy is NOT guaranteed. Verify location through multiple sources."
	DisclaimerFailed      = "⚠ GEOCODING FAILED - Coordinates may be in remote area or invalid."
	DisclaimerNoGPS       = "⚠ NO GPS DATA - Location cannot be determined from image metadata alone."
)

var ErrNoResult = errors.New("no geocoding result")

type Place struct {
	City        string
	State       string
	Country     string
	FullAddress string
}

type ReverseGeocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (*Place, error)
}

// Result is the location sub-record of an image analysis. Only Disclaimer is
// set unless a place was found.
type Result struct {
	City           string `json:"city,omitempty" yaml:"city,omitempty"`
	State          string `json:"state,omitempty" yaml:"state,omitempty"`
	Country        string `json:"country,omitempty" yaml:"country,omitempty"`
	FullAddress    string `json:"full_address,omitempty" yaml:"full_address,omitempty"`
	MapLink        string `json:"map_link,omitempty" yaml:"map_link,omitempty"`
	GoogleMapsLink string `json:"google_maps_link,omitempty" yaml:"google_maps_link,omitempty"`
	Disclaimer     string `json:"disclaimer" yaml:"disclaimer"`
}

func ErrorDisclaimer(err error) string {
	return fmt.Sprintf("⚠ GEOCODING ERROR: %v. Possible rate limit or network issue. Wait 60 seconds and retry.", err)
}

// MapLinks returns the OpenStreetMap and Google Maps links for a coordinate.
func MapLinks(lat, lon float64) (string, string) {
	la, lo := formatCoord(lat), formatCoord(lon)
	osm := fmt.Sprintf("https://www.openstreetmap.org/?mlat=%s&mlon=%s#map=15/%s/%s", la, lo, la, lo)
	google := fmt.Sprintf("https://www.google.com/maps?q=%s,%s", la, lo)
	return osm, google
}

// Run reverse geocodes lat/lon. has is false when the image carried no GPS
// pair, in which case no request is made.
func Run(ctx context.Context, g ReverseGeocoder, lat, lon float64, has bool) Result {
	if !has {
		return Result{Disclaimer: DisclaimerNoGPS}
	}
	place, err := g.Reverse(ctx, lat, lon)
	if err != nil {
		if errors.Is(err, ErrNoResult) {
			return Result{Disclaimer: DisclaimerFailed}
		}
		return Result{Disclaimer: ErrorDisclaimer(err)}
	}
	osm, google := MapLinks(lat, lon)
	return Result{
		City:           place.City,
		State:          place.State,
		Country:        place.Country,
		FullAddress:    place.FullAddress,
		MapLink:        osm,
		GoogleMapsLink: google,
		Disclaimer:     DisclaimerApproximate,
	}
}

// Nominatim queries an OpenStreetMap Nominatim reverse endpoint. Requests
// are spaced at least one second apart across all callers.
type Nominatim struct {
	endpoint  string
	userAgent string
	delay     time.Duration
	client    *http.Client
	limiter   *rate.Limiter
	log       *zap.Logger
}

// MinDelay is the shortest pause taken before each Nominatim request.
const MinDelay = time.Second

// NewNominatim builds a client. Delays shorter than MinDelay are raised to it.
func NewNominatim(endpoint, userAgent string, timeout, delay time.Duration, log *zap.Logger) *Nominatim {
	if delay < MinDelay {
		delay = MinDelay
	}
	return &Nominatim{
		endpoint:  endpoint,
		userAgent: userAgent,
		delay:     delay,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		log:       utils.OrNop(log),
	}
}

func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64) (*Place, error) {
	if err := pause(ctx, n.delay); err != nil {
		return nil, err
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limit wait")
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", formatCoord(lat))
	q.Set("lon", formatCoord(lon))
	q.Set("addressdetails", "1")
	q.Set("accept-language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Debug("nominatim request failed", zap.Float64("lat", lat), zap.Float64("lon", lon), zap.Error(err))
		return nil, errors.Wrap(err, "nominatim request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("nominatim HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read nominatim response")
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("nominatim returned invalid JSON")
	}
	return parsePlace(body)
}

func parsePlace(body []byte) (*Place, error) {
	doc := gjson.ParseBytes(body)
	if doc.Get("error").Exists() || !doc.Get("display_name").Exists() {
		return nil, ErrNoResult
	}
	addr := doc.Get("address")
	return &Place{
		City:        firstOf(addr, "city", "town", "village"),
		State:       firstOf(addr, "state", "region"),
		Country:     firstOf(addr, "country"),
		FullAddress: orDefault(doc.Get("display_name").String(), NoFullAddress),
	}, nil
}

func firstOf(obj gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(obj.Get(k).String()); v != "" {
			return v
		}
	}
	return NotAvailable
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "geocoding pause")
	case <-t.C:
		return nil
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
