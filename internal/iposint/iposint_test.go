package iposint

import (
	"context"
	"net"
	"testing"

	"github.com/pkg/errors"

	"github.com/shii9/ipwnedyou/internal/dns"
	"github.com/shii9/ipwnedyou/internal/geolocation"
)

type fakeGeo struct {
	geo   *geolocation.Geolocation
	err   error
	calls int
}

func (f *fakeGeo) Lookup(context.Context, string) (*geolocation.Geolocation, error) {
	f.calls++
	return f.geo, f.err
}

type ptrResolver struct {
	net.Resolver
	names []string
	err   error
	calls int
}

func (r *ptrResolver) LookupAddr(context.Context, string) ([]string, error) {
	r.calls++
	return r.names, r.err
}

func TestScanInvalidMakesNoCalls(t *testing.T) {
	for _, ip := range []string{"999.999.999.999", "1.2.3", "abc", "", "1.2.3.4.5", "::1", "2001:db8::1", "01.2.3.4"} {
		geo := &fakeGeo{}
		res := &ptrResolver{}
		out := NewScanner(geo, res, nil).Scan(context.Background(), ip)
		if out.Status != StatusInvalid {
			t.Fatalf("%q: status = %s", ip, out.Status)
		}
		if len(out.Errors) != 1 || out.Errors[0] != MsgInvalid {
			t.Fatalf("%q: errors = %v", ip, out.Errors)
		}
		if out.Geolocation != nil {
			t.Fatalf("%q: geolocation should be absent", ip)
		}
		if geo.calls != 0 || res.calls != 0 {
			t.Fatalf("%q: made %d geo / %d dns calls", ip, geo.calls, res.calls)
		}
	}
}

func TestScanActive(t *testing.T) {
	geo := &fakeGeo{geo: &geolocation.Geolocation{Country: "United States", ISP: "Google LLC"}}
	res := &ptrResolver{names: []string{"dns.google."}}

	out := NewScanner(geo, res, nil).Scan(context.Background(), "8.8.8.8")
	if out.Status != StatusActive {
		t.Fatalf("status = %s, errors = %v", out.Status, out.Errors)
	}
	if out.Geolocation == nil || out.Geolocation.Country == "" || out.Geolocation.ISP == "" {
		t.Fatalf("geolocation = %+v", out.Geolocation)
	}
	if out.ReverseDNS != "dns.google" {
		t.Fatalf("reverse dns = %q", out.ReverseDNS)
	}
	if len(out.Limitations) != 4 || len(out.Errors) != 0 {
		t.Fatalf("limitations = %v, errors = %v", out.Limitations, out.Errors)
	}
}

func TestScanFailureClassification(t *testing.T) {
	cases := []struct {
		err    error
		status string
		msg    string
	}{
		{&geolocation.Error{Kind: geolocation.KindTimeout}, StatusTimeout, "API request timed out"},
		{&geolocation.Error{Kind: geolocation.KindHTTPStatus, StatusCode: 503}, StatusAPIError, "API request failed: HTTP 503"},
		{&geolocation.Error{Kind: geolocation.KindAPIStatus, Message: "reserved range"}, StatusLookupFailed, "Geolocation failed: reserved range"},
		{&geolocation.Error{Kind: geolocation.KindNetwork, Err: errors.New("connection reset")}, StatusError, "API request error: connection reset"},
		{errors.New("something else"), StatusError, "something else"},
	}
	for _, tc := range cases {
		geo := &fakeGeo{err: tc.err}
		res := &ptrResolver{err: dns.ErrNotFound}
		out := NewScanner(geo, res, nil).Scan(context.Background(), "192.0.2.1")
		if out.Status != tc.status {
			t.Fatalf("status = %s, want %s", out.Status, tc.status)
		}
		if len(out.Errors) != 1 || out.Errors[0] != tc.msg {
			t.Fatalf("errors = %v, want %q", out.Errors, tc.msg)
		}
		if out.Geolocation != nil {
			t.Fatalf("geolocation should be absent on failure")
		}
		if out.ReverseDNS != NoPTR || res.calls != 1 {
			t.Fatalf("reverse dns = %q after %d calls", out.ReverseDNS, res.calls)
		}
		if len(out.Limitations) != 4 {
			t.Fatalf("limitations = %v", out.Limitations)
		}
	}
}

func TestReverseLookupFailure(t *testing.T) {
	geo := &fakeGeo{geo: &geolocation.Geolocation{}}
	res := &ptrResolver{err: errors.New("server misbehaving")}
	out := NewScanner(geo, res, nil).Scan(context.Background(), "192.0.2.1")
	if out.ReverseDNS != "Lookup failed: server misbehaving" {
		t.Fatalf("reverse dns = %q", out.ReverseDNS)
	}
}
