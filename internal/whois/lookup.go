package whois

import (
	"context"
	"regexp"
	"strings"
	"time"

	whois "github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/shii9/ipwnedyou/internal/utils"
)

const NotAvailable = "N/A"

// ErrNoRecord means the registry answered but holds no registration for the name.
var ErrNoRecord = errors.New("no registration record found")

// Registration is the subset of registration data reported for a domain.
// Fields that could not be determined hold "N/A".
type Registration struct {
	Registrar      string   `json:"registrar" yaml:"registrar"`
	CreationDate   string   `json:"creation_date" yaml:"creation_date"`
	ExpirationDate string   `json:"expiration_date" yaml:"expiration_date"`
	UpdatedDate    string   `json:"updated_date" yaml:"updated_date"`
	NameServers    []string `json:"name_servers" yaml:"name_servers"`
	Statuses       []string `json:"statuses" yaml:"statuses"`
}

// Registry looks up registration data for a registrable domain.
type Registry interface {
	Lookup(ctx context.Context, domain string) (*Registration, error)
}

type Client struct {
	client *whois.Client
	log    *zap.Logger
}

func NewClient(timeout time.Duration, log *zap.Logger) *Client {
	c := whois.NewClient()
	c.SetTimeout(timeout)
	return &Client{client: c, log: utils.OrNop(log)}
}

func (c *Client) Lookup(ctx context.Context, domain string) (*Registration, error) {
	type answer struct {
		raw string
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		raw, err := c.client.Whois(domain)
		ch <- answer{raw: raw, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "whois query")
	case a := <-ch:
		if a.err != nil {
			return nil, errors.Wrap(a.err, "whois query")
		}
		reg, err := Parse(a.raw)
		if err != nil {
			c.log.Debug("whois parse failed", zap.String("domain", domain), zap.Error(err))
			return nil, err
		}
		return reg, nil
	}
}

// Parse extracts registration data from a raw WHOIS answer. The structured
// parser runs first; label patterns fill whatever it leaves empty.
func Parse(raw string) (*Registration, error) {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoRecord
	}

	fallback := parseLabels(text)

	info, err := whoisparser.Parse(text)
	if err != nil {
		if errors.Is(err, whoisparser.ErrNotFoundDomain) {
			return nil, ErrNoRecord
		}
		if fallback.empty() {
			return nil, errors.Wrap(err, "parse whois")
		}
		return fallback.finish(), nil
	}

	reg := &Registration{}
	if info.Registrar != nil {
		reg.Registrar = info.Registrar.Name
	}
	if info.Domain != nil {
		reg.CreationDate = info.Domain.CreatedDate
		reg.ExpirationDate = info.Domain.ExpirationDate
		reg.UpdatedDate = info.Domain.UpdatedDate
		reg.NameServers = info.Domain.NameServers
		reg.Statuses = info.Domain.Status
	}
	reg.merge(fallback)
	return reg.finish(), nil
}

func (r *Registration) merge(o *Registration) {
	if r.Registrar == "" {
		r.Registrar = o.Registrar
	}
	if r.CreationDate == "" {
		r.CreationDate = o.CreationDate
	}
	if r.ExpirationDate == "" {
		r.ExpirationDate = o.ExpirationDate
	}
	if r.UpdatedDate == "" {
		r.UpdatedDate = o.UpdatedDate
	}
	if len(r.NameServers) == 0 {
		r.NameServers = o.NameServers
	}
	if len(r.Statuses) == 0 {
		r.Statuses = o.Statuses
	}
}

func (r *Registration) empty() bool {
	return r.Registrar == "" && r.CreationDate == "" && r.ExpirationDate == "" && len(r.NameServers) == 0
}

func (r *Registration) finish() *Registration {
	r.Registrar = emptyIfNil(r.Registrar)
	r.CreationDate = emptyIfNil(normalizeDate(r.CreationDate))
	r.ExpirationDate = emptyIfNil(normalizeDate(r.ExpirationDate))
	r.UpdatedDate = emptyIfNil(normalizeDate(r.UpdatedDate))

	ns := make([]string, 0, len(r.NameServers))
	for _, n := range r.NameServers {
		ns = append(ns, strings.ToLower(strings.TrimSuffix(strings.TrimSpace(n), ".")))
	}
	r.NameServers = uniqueStrings(ns)
	r.Statuses = uniqueStrings(r.Statuses)
	return r
}

// ---------- label fallback ----------

func parseLabels(text string) *Registration {
	reg := &Registration{
		Registrar: firstAny(text,
			`Registrar:\s*(.+)`,
			`Registrar Name:\s*(.+)`,
			`Sponsoring Registrar:\s*(.+)`,
		),
		CreationDate: firstAny(text,
			`Creation Date:\s*(.+)`,
			`Created On:\s*(.+)`,
			`Registered On:\s*(.+)`,
			`Domain Registration Date:\s*(.+)`,
		),
		UpdatedDate: firstAny(text,
			`Updated Date:\s*(.+)`,
			`Last Updated On:\s*(.+)`,
			`Last updated:\s*(.+)`,
		),
		ExpirationDate: firstAny(text,
			`Registry Expiry Date:\s*(.+)`,
			`Registrar Registration Expiration Date:\s*(.+)`,
			`Expiration Date:\s*(.+)`,
			`Expires On:\s*(.+)`,
		),
	}

	reg.NameServers = uniqueStrings(findAll(`Name Server:\s*(.+)`, text))
	if len(reg.NameServers) == 0 {
		reg.NameServers = uniqueStrings(findAll(`Nameserver:\s*(.+)`, text))
	}

	for _, s := range findAll(`Status:\s*([^\n\r]+)`, text) {
		// "clientDeleteProhibited https://icann.org/epp#..." keeps the code only
		if f := strings.Fields(s); len(f) > 0 {
			reg.Statuses = append(reg.Statuses, f[0])
		}
	}
	reg.Statuses = uniqueStrings(reg.Statuses)
	return reg
}

// ---------- helpers ----------

func findFirst(pattern, text string) string {
	re := regexp.MustCompile("(?im)" + pattern)
	if m := re.FindStringSubmatch(text); len(m) >= 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func findAll(pattern, text string) []string {
	re := regexp.MustCompile("(?im)" + pattern)
	matches := re.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) >= 2 {
			if v := strings.TrimSpace(m[1]); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// firstAny checks multiple regex patterns and returns first match
func firstAny(text string, patterns ...string) string {
	for _, p := range patterns {
		if v := findFirst(p, text); v != "" {
			return v
		}
	}
	return ""
}

func uniqueStrings(in []string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func emptyIfNil(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotAvailable
	}
	return s
}

func normalizeDate(s string) string {
	if t, ok := parseDateTry(strings.TrimSpace(s)); ok {
		return t.UTC().Format("2006-01-02 15:04:05")
	}
	return strings.TrimSpace(s)
}

func parseDateTry(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05.000Z",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"02-Jan-2006",
		"2006.01.02 15:04:05",
		"2006/01/02 15:04:05",
		"Mon Jan 02 15:04:05 MST 2006",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
