package dns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/shii9/ipwnedyou/internal/utils"
)

// ErrNotFound is returned when a name exists in no configured server or has
// no records of the requested type.
var ErrNotFound = errors.New("no such record")

// Resolver is the lookup surface the scan pipelines need. *net.Resolver
// satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// New returns the system resolver when servers is empty and a ServerResolver
// querying the given servers otherwise. Each lookup is bounded by timeout.
func New(servers []string, timeout time.Duration, log *zap.Logger) Resolver {
	if len(servers) == 0 {
		return WithTimeout(net.DefaultResolver, timeout)
	}
	return NewServerResolver(servers, timeout, log)
}

// WithTimeout bounds every lookup made through r by d. A zero or negative d
// returns r unchanged.
func WithTimeout(r Resolver, d time.Duration) Resolver {
	if d <= 0 {
		return r
	}
	return &timeoutResolver{next: r, timeout: d}
}

type timeoutResolver struct {
	next    Resolver
	timeout time.Duration
}

func (t *timeoutResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.LookupHost(ctx, host)
}

func (t *timeoutResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.LookupMX(ctx, name)
}

func (t *timeoutResolver) LookupNS(ctx context.Context, name string) ([]*net.NS, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.LookupNS(ctx, name)
}

func (t *timeoutResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.LookupTXT(ctx, name)
}

func (t *timeoutResolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.LookupAddr(ctx, addr)
}

// IsNotFound reports whether err means the record does not exist, for both
// the system resolver and ServerResolver.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}
	return false
}

// ServerResolver sends queries directly to a fixed list of DNS servers,
// trying each in order until one answers.
type ServerResolver struct {
	servers []string
	client  *mdns.Client
	log     *zap.Logger
}

func NewServerResolver(servers []string, timeout time.Duration, log *zap.Logger) *ServerResolver {
	addrs := make([]string, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		addrs = append(addrs, s)
	}
	return &ServerResolver{
		servers: addrs,
		client:  &mdns.Client{Timeout: timeout},
		log:     utils.OrNop(log),
	}
}

func (r *ServerResolver) exchange(ctx context.Context, name string, qtype uint16) ([]mdns.RR, error) {
	msg := new(mdns.Msg)
	msg.SetQuestion(mdns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	lastErr := errors.New("no DNS servers configured")
	for _, server := range r.servers {
		in, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			r.log.Debug("dns exchange failed",
				zap.String("server", server),
				zap.String("name", name),
				zap.String("type", mdns.TypeToString[qtype]),
				zap.Error(err),
			)
			lastErr = errors.Wrapf(err, "query %s", server)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}
		switch in.Rcode {
		case mdns.RcodeSuccess:
			return in.Answer, nil
		case mdns.RcodeNameError:
			return nil, errors.Wrapf(ErrNotFound, "%s %s", mdns.TypeToString[qtype], name)
		default:
			lastErr = errors.Errorf("%s answered %s", server, mdns.RcodeToString[in.Rcode])
		}
	}
	return nil, lastErr
}

func (r *ServerResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	var addrs []string
	for i, qtype := range []uint16{mdns.TypeA, mdns.TypeAAAA} {
		answers, err := r.exchange(ctx, host, qtype)
		if err != nil {
			// A decides existence; AAAA only adds addresses.
			if i == 0 {
				return nil, err
			}
			continue
		}
		for _, rr := range answers {
			switch v := rr.(type) {
			case *mdns.A:
				addrs = append(addrs, v.A.String())
			case *mdns.AAAA:
				addrs = append(addrs, v.AAAA.String())
			}
		}
	}
	if len(addrs) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "host %s", host)
	}
	return addrs, nil
}

func (r *ServerResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	answers, err := r.exchange(ctx, name, mdns.TypeMX)
	if err != nil {
		return nil, err
	}
	var out []*net.MX
	for _, rr := range answers {
		if mx, ok := rr.(*mdns.MX); ok {
			out = append(out, &net.MX{Host: mx.Mx, Pref: mx.Preference})
		}
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "MX %s", name)
	}
	return out, nil
}

func (r *ServerResolver) LookupNS(ctx context.Context, name string) ([]*net.NS, error) {
	answers, err := r.exchange(ctx, name, mdns.TypeNS)
	if err != nil {
		return nil, err
	}
	var out []*net.NS
	for _, rr := range answers {
		if ns, ok := rr.(*mdns.NS); ok {
			out = append(out, &net.NS{Host: ns.Ns})
		}
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "NS %s", name)
	}
	return out, nil
}

func (r *ServerResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	answers, err := r.exchange(ctx, name, mdns.TypeTXT)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rr := range answers {
		if txt, ok := rr.(*mdns.TXT); ok {
			out = append(out, strings.Join(txt.Txt, ""))
		}
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "TXT %s", name)
	}
	return out, nil
}

func (r *ServerResolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	arpa, err := mdns.ReverseAddr(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "reverse name for %s", addr)
	}
	answers, err := r.exchange(ctx, arpa, mdns.TypePTR)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rr := range answers {
		if ptr, ok := rr.(*mdns.PTR); ok {
			out = append(out, ptr.Ptr)
		}
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "PTR %s", addr)
	}
	return out, nil
}

// -------------------- Record helpers --------------------

// FormatMX renders MX records as "host (Priority: n)".
func FormatMX(records []*net.MX) []string {
	out := make([]string, 0, len(records))
	for _, mx := range records {
		out = append(out, fmt.Sprintf("%s (Priority: %d)", TrimDot(mx.Host), mx.Pref))
	}
	return out
}

func NSHosts(records []*net.NS) []string {
	out := make([]string, 0, len(records))
	for _, ns := range records {
		out = append(out, TrimDot(ns.Host))
	}
	return out
}

// SPF returns the first v=spf1 record among txt, or "".
func SPF(txt []string) string {
	for _, t := range txt {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(t)), "v=spf1") {
			return t
		}
	}
	return ""
}

func TrimDot(name string) string {
	return strings.TrimSuffix(name, ".")
}
