package subdomain

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/shii9/ipwnedyou/internal/dns"
	"github.com/shii9/ipwnedyou/internal/utils"
)

// DefaultPrefixes is the heuristic guess list probed for every domain.
var DefaultPrefixes = []string{
	"www", "mail", "ftp", "admin", "webmail", "smtp", "pop", "ns1", "ns2", "blog",
	"dev", "api", "test", "staging", "vpn", "portal", "shop", "m", "cdn", "remote",
}

// Prober resolves <prefix>.<domain> for a fixed prefix list.
type Prober struct {
	resolver dns.Resolver
	prefixes []string
	log      *zap.Logger
}

func NewProber(resolver dns.Resolver, prefixes []string, log *zap.Logger) *Prober {
	if len(prefixes) == 0 {
		prefixes = DefaultPrefixes
	}
	return &Prober{resolver: resolver, prefixes: unique(prefixes), log: utils.OrNop(log)}
}

// Probe returns the candidate hosts that resolve, in prefix order. It never
// returns nil; a domain with no matches yields an empty slice.
func (p *Prober) Probe(ctx context.Context, domain string) []string {
	out := []string{}
	for _, prefix := range p.prefixes {
		if ctx.Err() != nil {
			break
		}
		host := prefix + "." + domain
		ips, err := p.resolver.LookupHost(ctx, host)
		if err != nil {
			if !dns.IsNotFound(err) {
				p.log.Debug("subdomain probe failed", zap.String("host", host), zap.Error(err))
			}
			continue
		}
		if len(ips) > 0 {
			out = append(out, host)
		}
	}
	return out
}

func unique(slice []string) []string {
	seen := make(map[string]struct{})
	uniqueList := []string{}
	for _, item := range slice {
		item = strings.ToLower(strings.Trim(strings.TrimSpace(item), "."))
		if item == "" {
			continue
		}
		if _, ok := seen[item]; !ok {
			seen[item] = struct{}{}
			uniqueList = append(uniqueList, item)
		}
	}
	return uniqueList
}
