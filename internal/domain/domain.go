// Package domain gathers DNS and registration facts for a domain name.
package domain

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/shii9/ipwnedyou/internal/dns"
	"github.com/shii9/ipwnedyou/internal/subdomain"
	"github.com/shii9/ipwnedyou/internal/utils"
	"github.com/shii9/ipwnedyou/internal/whois"
)

const (
	StatusActive  = "Active"
	StatusPartial = "Partial"
	StatusFailed  = "Failed"
)

// TimeLayout is used for the timestamp carried on every scan result.
const TimeLayout = "2006-01-02 15:04:05"

var ErrEmptyTarget = errors.New("Domain is required")

type ScanResult struct {
	Domain      string              `json:"domain" yaml:"domain"`
	Timestamp   string              `json:"timestamp" yaml:"timestamp"`
	IPAddresses []string            `json:"ip_addresses" yaml:"ip_addresses"`
	MXRecords   []string            `json:"mx_records" yaml:"mx_records"`
	NameServers []string            `json:"name_servers" yaml:"name_servers"`
	TXTRecords  []string            `json:"txt_records" yaml:"txt_records"`
	SPF         string              `json:"spf" yaml:"spf"`
	Subdomains  []string            `json:"subdomains" yaml:"subdomains"`
	Whois       *whois.Registration `json:"whois" yaml:"whois"`
	Errors      []string            `json:"errors" yaml:"errors"`
	Status      string              `json:"status" yaml:"status"`
}

type Scanner struct {
	resolver dns.Resolver
	registry whois.Registry
	prober   *subdomain.Prober
	log      *zap.Logger
	now      func() time.Time
}

func NewScanner(resolver dns.Resolver, registry whois.Registry, prefixes []string, log *zap.Logger) *Scanner {
	log = utils.OrNop(log)
	return &Scanner{
		resolver: resolver,
		registry: registry,
		prober:   subdomain.NewProber(resolver, prefixes, log),
		log:      log,
		now:      time.Now,
	}
}

// Scan runs every lookup for a bare hostname. A failed lookup adds one entry
// to Errors and the remaining lookups still run.
func (s *Scanner) Scan(ctx context.Context, domain string) (res *ScanResult) {
	res = &ScanResult{
		Domain:      domain,
		Timestamp:   s.now().Format(TimeLayout),
		IPAddresses: []string{},
		MXRecords:   []string{},
		NameServers: []string{},
		TXTRecords:  []string{},
		Subdomains:  []string{},
		Errors:      []string{},
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("domain scan panicked", zap.String("domain", domain), zap.Any("panic", r))
			res.Errors = append(res.Errors, fmt.Sprintf("Scan error: %v", r))
			res.Status = StatusFailed
		}
	}()

	s.log.Info("domain scan started", zap.String("domain", domain))

	hosts := s.resolve(ctx, domain)
	if hosts.Failed() {
		res.Errors = append(res.Errors, fmt.Sprintf("DNS resolution failed: %v", describe(hosts.Err)))
	} else {
		res.IPAddresses = hosts.Value
	}

	mx := s.mx(ctx, domain)
	if mx.Failed() {
		if dns.IsNotFound(mx.Err) {
			res.Errors = append(res.Errors, "No MX records found")
		} else {
			res.Errors = append(res.Errors, fmt.Sprintf("MX lookup failed: %v", mx.Err))
		}
	} else {
		res.MXRecords = mx.Value
	}

	if ns := s.ns(ctx, domain); ns.Failed() {
		if !dns.IsNotFound(ns.Err) {
			res.Errors = append(res.Errors, fmt.Sprintf("NS lookup failed: %v", ns.Err))
		}
	} else {
		res.NameServers = ns.Value
	}

	if txt := s.txt(ctx, domain); txt.Failed() {
		if !dns.IsNotFound(txt.Err) {
			res.Errors = append(res.Errors, fmt.Sprintf("TXT lookup failed: %v", txt.Err))
		}
	} else {
		res.TXTRecords = txt.Value
		res.SPF = dns.SPF(txt.Value)
	}

	res.Subdomains = s.prober.Probe(ctx, domain)

	reg := s.registration(ctx, domain)
	if reg.Failed() {
		if errors.Is(reg.Err, whois.ErrNoRecord) {
			res.Errors = append(res.Errors, "No WHOIS record found")
		} else {
			res.Errors = append(res.Errors, fmt.Sprintf("WHOIS lookup failed: %v", reg.Err))
		}
	} else {
		res.Whois = reg.Value
	}

	res.Status = status(len(res.IPAddresses) > 0, res.Whois != nil, len(res.Errors))
	s.log.Info("domain scan finished",
		zap.String("domain", domain),
		zap.String("status", res.Status),
		zap.Int("errors", len(res.Errors)),
	)
	return res
}

func status(resolved, registered bool, errCount int) string {
	switch {
	case errCount == 0:
		return StatusActive
	case !resolved && !registered:
		return StatusFailed
	default:
		return StatusPartial
	}
}

func (s *Scanner) resolve(ctx context.Context, domain string) utils.Outcome[[]string] {
	ips, err := s.resolver.LookupHost(ctx, domain)
	if err != nil {
		s.log.Debug("host lookup failed", zap.String("domain", domain), zap.Error(err))
		return utils.Fail[[]string](err)
	}
	return utils.Ok(uniqueSorted(ips))
}

func (s *Scanner) mx(ctx context.Context, domain string) utils.Outcome[[]string] {
	records, err := s.resolver.LookupMX(ctx, domain)
	if err == nil && len(records) == 0 {
		err = dns.ErrNotFound
	}
	if err != nil {
		return utils.Fail[[]string](err)
	}
	return utils.Ok(dns.FormatMX(records))
}

func (s *Scanner) ns(ctx context.Context, domain string) utils.Outcome[[]string] {
	records, err := s.resolver.LookupNS(ctx, domain)
	if err != nil {
		return utils.Fail[[]string](err)
	}
	return utils.Ok(dns.NSHosts(records))
}

func (s *Scanner) txt(ctx context.Context, domain string) utils.Outcome[[]string] {
	records, err := s.resolver.LookupTXT(ctx, domain)
	if err != nil {
		return utils.Fail[[]string](err)
	}
	return utils.Ok(records)
}

func (s *Scanner) registration(ctx context.Context, domain string) utils.Outcome[*whois.Registration] {
	target := domain
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(domain); err == nil {
		target = etld1
	}
	reg, err := s.registry.Lookup(ctx, target)
	if err == nil && reg == nil {
		err = whois.ErrNoRecord
	}
	if err != nil {
		s.log.Debug("registration lookup failed", zap.String("domain", target), zap.Error(err))
		return utils.Fail[*whois.Registration](err)
	}
	return utils.Ok(reg)
}

func describe(err error) string {
	if dns.IsNotFound(err) {
		return "domain does not resolve"
	}
	return err.Error()
}

func uniqueSorted(ips []string) []string {
	var v4, v6 []string
	seen := map[string]struct{}{}
	for _, ip := range ips {
		if _, ok := seen[ip]; ok {
			continue
		}
		seen[ip] = struct{}{}
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() == nil {
			v6 = append(v6, ip)
		} else {
			v4 = append(v4, ip)
		}
	}
	return append(v4, v6...)
}

// NormalizeTarget turns operator input such as "https://www.Example.com/path"
// into the bare ASCII hostname the scanner expects.
func NormalizeTarget(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptyTarget
	}
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Hostname() != "" {
			s = u.Hostname()
		}
	}
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "https://")
	if idx := strings.IndexAny(s, "/?#"); idx != -1 {
		s = s[:idx]
	}
	if strings.Contains(s, "@") {
		parts := strings.Split(s, "@")
		s = parts[len(parts)-1]
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(strings.ToLower(s), ".")
	s = strings.TrimPrefix(s, "www.")
	if s == "" {
		return "", ErrEmptyTarget
	}

	ascii, err := idna.Lookup.ToASCII(s)
	if err != nil {
		return "", errors.Wrapf(err, "invalid domain %q", raw)
	}
	if !strings.Contains(ascii, ".") {
		return "", errors.Errorf("invalid domain %q", raw)
	}
	return ascii, nil
}
