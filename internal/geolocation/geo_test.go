package geolocation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestLookupSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/8.8.8.8" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if !strings.Contains(r.URL.RawQuery, "fields=") {
			t.Errorf("missing fields param: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","country":"United States","countryCode":"US","region":"VA","regionName":"Virginia","city":"Ashburn","zip":"20149","lat":39.03,"lon":-77.5,"timezone":"America/New_York","isp":"Google LLC","org":"Google Public DNS","as":"AS15169 Google LLC","query":"8.8.8.8"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/json/", 2*time.Second, 0, nil)
	geo, err := c.Lookup(context.Background(), "8.8.8.8")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if geo.Country != "United States" || geo.ISP != "Google LLC" {
		t.Fatalf("unexpected geo: %+v", geo)
	}
	if geo.Region != "Virginia" || geo.RegionCode != "VA" {
		t.Fatalf("region mapping wrong: %+v", geo)
	}
	if geo.Latitude != "39.03" || geo.Longitude != "-77.5" {
		t.Fatalf("coords = %s, %s", geo.Latitude, geo.Longitude)
	}
	if geo.ASN != "AS15169 Google LLC" || geo.Organization != "Google Public DNS" {
		t.Fatalf("asn/org = %s / %s", geo.ASN, geo.Organization)
	}
}

func TestLookupMissingFieldsAreNA(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","country":"Nowhere"}`))
	}))
	defer srv.Close()

	geo, err := NewClient(srv.URL, time.Second, 0, nil).Lookup(context.Background(), "192.0.2.1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if geo.City != NotAvailable || geo.Latitude != NotAvailable || geo.ASN != NotAvailable {
		t.Fatalf("expected N/A fields: %+v", geo)
	}
}

func kindOf(t *testing.T, err error) *Error {
	t.Helper()
	var ge *Error
	if !errors.As(err, &ge) {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
	return ge
}

func TestLookupAPIStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","message":"private range","query":"10.0.0.1"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, 0, nil).Lookup(context.Background(), "10.0.0.1")
	ge := kindOf(t, err)
	if ge.Kind != KindAPIStatus || ge.Error() != "Geolocation failed: private range" {
		t.Fatalf("unexpected error: %v (%d)", ge, ge.Kind)
	}
}

func TestLookupHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, 0, nil).Lookup(context.Background(), "1.1.1.1")
	ge := kindOf(t, err)
	if ge.Kind != KindHTTPStatus || ge.Error() != "API request failed: HTTP 429" {
		t.Fatalf("unexpected error: %v", ge)
	}
}

func TestLookupTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 50*time.Millisecond, 0, nil).Lookup(context.Background(), "1.1.1.1")
	ge := kindOf(t, err)
	if ge.Kind != KindTimeout || ge.Error() != "API request timed out" {
		t.Fatalf("unexpected error: %v", ge)
	}
}

func TestLookupNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second, 0, nil).Lookup(context.Background(), "1.1.1.1")
	ge := kindOf(t, err)
	if ge.Kind != KindNetwork || !strings.HasPrefix(ge.Error(), "API request error: ") {
		t.Fatalf("unexpected error: %v", ge)
	}
}
