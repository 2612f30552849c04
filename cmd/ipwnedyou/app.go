package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/shii9/ipwnedyou/internal/auth"
	"github.com/shii9/ipwnedyou/internal/config"
	"github.com/shii9/ipwnedyou/internal/dns"
	"github.com/shii9/ipwnedyou/internal/domain"
	"github.com/shii9/ipwnedyou/internal/geocode"
	"github.com/shii9/ipwnedyou/internal/geolocation"
	"github.com/shii9/ipwnedyou/internal/imageintel"
	"github.com/shii9/ipwnedyou/internal/iposint"
	"github.com/shii9/ipwnedyou/internal/ocr"
	"github.com/shii9/ipwnedyou/internal/report"
	"github.com/shii9/ipwnedyou/internal/whois"
)

// app holds every component built from one configuration.
type app struct {
	domains *domain.Scanner
	ips     *iposint.Scanner
	images  *imageintel.Analyzer
	reports *report.Store
}

func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	resolver := dns.New(cfg.DNS.Servers, config.Seconds(cfg.DNS.Timeout, 5*time.Second), log)
	registry := whois.NewClient(config.Seconds(cfg.Whois.Timeout, 10*time.Second), log)
	geo := geolocation.NewClient(cfg.Geolocation.Endpoint, config.Seconds(cfg.Geolocation.Timeout, 10*time.Second), cfg.Geolocation.RatePerMinute, log)
	tesseract := ocr.NewTesseract(cfg.OCR.Tesseract, cfg.OCR.Language, config.Seconds(cfg.OCR.Timeout, 30*time.Second), log)
	nominatim := geocode.NewNominatim(
		cfg.Geocode.Endpoint,
		cfg.Geocode.UserAgent,
		config.Seconds(cfg.Geocode.Timeout, 10*time.Second),
		time.Duration(cfg.Geocode.DelayMs)*time.Millisecond,
		log,
	)

	engines := make([]imageintel.SearchEngine, 0, len(cfg.Reverse.Engines))
	for _, e := range cfg.Reverse.Engines {
		engines = append(engines, imageintel.SearchEngine{Name: e.Name, URL: e.URL})
	}

	store, err := report.NewStore(cfg.Paths.Reports)
	if err != nil {
		return nil, err
	}

	return &app{
		domains: domain.NewScanner(resolver, registry, cfg.DNS.SubdomainPrefixes, log),
		ips:     iposint.NewScanner(geo, resolver, log),
		images:  imageintel.NewAnalyzer(tesseract, nominatim, engines, log),
		reports: store,
	}, nil
}

func newSessionStore(cfg *config.Config) *auth.SessionStore {
	return auth.NewSessionStore(config.Seconds(cfg.Server.SessionLifetime, 30*time.Minute))
}
