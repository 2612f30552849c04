package geolocation

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shii9/ipwnedyou/internal/utils"
)

const NotAvailable = "N/A"

const ipapiFields = "status,message,country,countryCode,region,regionName,city,zip,lat,lon,timezone,isp,org,as,query"

// Geolocation is what the geolocation service knows about one address.
// Every field holds "N/A" when the service left it out.
type Geolocation struct {
	Country      string `json:"country" yaml:"country"`
	CountryCode  string `json:"country_code" yaml:"country_code"`
	Region       string `json:"region" yaml:"region"`
	RegionCode   string `json:"region_code" yaml:"region_code"`
	City         string `json:"city" yaml:"city"`
	ZipCode      string `json:"zip_code" yaml:"zip_code"`
	Latitude     string `json:"latitude" yaml:"latitude"`
	Longitude    string `json:"longitude" yaml:"longitude"`
	Timezone     string `json:"timezone" yaml:"timezone"`
	ISP          string `json:"isp" yaml:"isp"`
	Organization string `json:"organization" yaml:"organization"`
	ASN          string `json:"asn" yaml:"asn"`
}

// Lookup resolves an IP literal to a location.
type Lookup interface {
	Lookup(ctx context.Context, ip string) (*Geolocation, error)
}

type ErrorKind int

const (
	KindTimeout ErrorKind = iota + 1
	KindNetwork
	KindHTTPStatus
	KindAPIStatus
)

// Error classifies a failed lookup. Its message is shown to operators as is.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		return "API request timed out"
	case KindHTTPStatus:
		return fmt.Sprintf("API request failed: HTTP %d", e.StatusCode)
	case KindAPIStatus:
		return fmt.Sprintf("Geolocation failed: %s", e.Message)
	default:
		return fmt.Sprintf("API request error: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

type ipapiResult struct {
	Status      string   `json:"status"`
	Message     string   `json:"message,omitempty"`
	Country     string   `json:"country"`
	CountryCode string   `json:"countryCode"`
	Region      string   `json:"region"`
	RegionName  string   `json:"regionName"`
	City        string   `json:"city"`
	Zip         string   `json:"zip"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	Timezone    string   `json:"timezone"`
	ISP         string   `json:"isp"`
	Org         string   `json:"org"`
	AS          string   `json:"as"` // "AS15169 Google LLC"
	Query       string   `json:"query"`
}

func (r *ipapiResult) toGeolocation() *Geolocation {
	return &Geolocation{
		Country:      orNA(r.Country),
		CountryCode:  orNA(r.CountryCode),
		Region:       orNA(r.RegionName),
		RegionCode:   orNA(r.Region),
		City:         orNA(r.City),
		ZipCode:      orNA(r.Zip),
		Latitude:     floatOrNA(r.Lat),
		Longitude:    floatOrNA(r.Lon),
		Timezone:     orNA(r.Timezone),
		ISP:          orNA(r.ISP),
		Organization: orNA(r.Org),
		ASN:          orNA(r.AS),
	}
}

// Client queries the ip-api.com JSON endpoint.
type Client struct {
	endpoint  string
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	log       *zap.Logger
}

// NewClient builds a client for endpoint. perMinute <= 0 disables client-side
// pacing.
func NewClient(endpoint string, timeout time.Duration, perMinute int, log *zap.Logger) *Client {
	c := &Client{
		endpoint:  strings.TrimSuffix(endpoint, "/"),
		client:    &http.Client{Timeout: timeout},
		userAgent: "ipwnedyou-geolocation/1.0",
		log:       utils.OrNop(log),
	}
	if perMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return c
}

func (c *Client) Lookup(ctx context.Context, ip string) (*Geolocation, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, classify(ctx, err)
		}
	}

	u := c.endpoint + "/" + url.PathEscape(ip) + "?fields=" + ipapiFields
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Debug("ip-api request failed", zap.String("ip", ip), zap.Error(err))
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindHTTPStatus, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, classify(ctx, err)
	}
	var r ipapiResult
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, &Error{Kind: KindNetwork, Err: errors.Wrap(err, "ip-api json parse failed")}
	}
	if r.Status != "success" {
		msg := r.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, &Error{Kind: KindAPIStatus, Message: msg}
	}
	return r.toGeolocation(), nil
}

func classify(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotAvailable
	}
	return s
}

func floatOrNA(f *float64) string {
	if f == nil {
		return NotAvailable
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
