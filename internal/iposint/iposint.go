// Package iposint reports geolocation and reverse DNS for an IPv4 address.
package iposint

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/shii9/ipwnedyou/internal/dns"
	"github.com/shii9/ipwnedyou/internal/geolocation"
	"github.com/shii9/ipwnedyou/internal/utils"
)

const (
	StatusActive       = "Active"
	StatusInvalid      = "Invalid"
	StatusLookupFailed = "Lookup Failed"
	StatusAPIError     = "API Error"
	StatusTimeout      = "Timeout"
	StatusError        = "Error"

	MsgInvalid = "Invalid IP address format"
	NoPTR      = "No PTR record"
)

const TimeLayout = "2006-01-02 15:04:05"

// Limitations is attached to every scan of a well-formed address.
var Limitations = []string{
	"Geolocation accuracy varies (city-level typical)",
	"ISP/ASN data may be outdated",
	"VPN/Proxy usage may show incorrect location",
	"Free API has rate limits (45 requests/minute)",
}

type ScanResult struct {
	IP          string                   `json:"ip" yaml:"ip"`
	Timestamp   string                   `json:"timestamp" yaml:"timestamp"`
	Geolocation *geolocation.Geolocation `json:"geolocation" yaml:"geolocation"`
	ReverseDNS  string                   `json:"reverse_dns" yaml:"reverse_dns"`
	Errors      []string                 `json:"errors" yaml:"errors"`
	Limitations []string                 `json:"limitations" yaml:"limitations"`
	Status      string                   `json:"status" yaml:"status"`
}

type Scanner struct {
	geo      geolocation.Lookup
	resolver dns.Resolver
	log      *zap.Logger
	now      func() time.Time
}

func NewScanner(geo geolocation.Lookup, resolver dns.Resolver, log *zap.Logger) *Scanner {
	return &Scanner{geo: geo, resolver: resolver, log: utils.OrNop(log), now: time.Now}
}

// ValidIPv4 reports whether s is a dotted-quad IPv4 literal.
func ValidIPv4(s string) bool {
	if strings.ContainsAny(s, ":%") {
		return false
	}
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}

// Scan validates ip and, when well formed, queries geolocation and reverse
// DNS independently. Malformed input returns before any network call.
func (s *Scanner) Scan(ctx context.Context, ip string) (res *ScanResult) {
	ip = strings.TrimSpace(ip)
	res = &ScanResult{
		IP:          ip,
		Timestamp:   s.now().Format(TimeLayout),
		Errors:      []string{},
		Limitations: []string{},
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("ip scan panicked", zap.String("ip", ip), zap.Any("panic", r))
			res.Errors = append(res.Errors, fmt.Sprintf("Scan error: %v", r))
			res.Status = StatusError
		}
	}()

	if !ValidIPv4(ip) {
		res.Errors = append(res.Errors, MsgInvalid)
		res.Status = StatusInvalid
		return res
	}

	s.log.Info("ip scan started", zap.String("ip", ip))

	geo := s.geolocate(ctx, ip)
	if geo.Failed() {
		res.Errors = append(res.Errors, geo.Err.Error())
		res.Status = failureStatus(geo.Err)
	} else {
		res.Geolocation = geo.Value
		res.Status = StatusActive
	}

	res.ReverseDNS = s.reverse(ctx, ip)
	res.Limitations = append(res.Limitations, Limitations...)

	s.log.Info("ip scan finished", zap.String("ip", ip), zap.String("status", res.Status))
	return res
}

func (s *Scanner) geolocate(ctx context.Context, ip string) utils.Outcome[*geolocation.Geolocation] {
	geo, err := s.geo.Lookup(ctx, ip)
	if err == nil && geo == nil {
		err = &geolocation.Error{Kind: geolocation.KindAPIStatus, Message: "empty response"}
	}
	if err != nil {
		s.log.Debug("geolocation failed", zap.String("ip", ip), zap.Error(err))
		return utils.Fail[*geolocation.Geolocation](err)
	}
	return utils.Ok(geo)
}

func failureStatus(err error) string {
	var ge *geolocation.Error
	if !errors.As(err, &ge) {
		return StatusError
	}
	switch ge.Kind {
	case geolocation.KindTimeout:
		return StatusTimeout
	case geolocation.KindHTTPStatus:
		return StatusAPIError
	case geolocation.KindAPIStatus:
		return StatusLookupFailed
	default:
		return StatusError
	}
}

func (s *Scanner) reverse(ctx context.Context, ip string) string {
	names, err := s.resolver.LookupAddr(ctx, ip)
	if err != nil {
		if dns.IsNotFound(err) {
			return NoPTR
		}
		return fmt.Sprintf("Lookup failed: %v", err)
	}
	if len(names) == 0 {
		return NoPTR
	}
	return dns.TrimDot(names[0])
}
