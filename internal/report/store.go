package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/shii9/ipwnedyou/internal/utils"
)

// Kinds of reports, used as the file name prefix.
const (
	KindDomain = "domain"
	KindIP     = "ip"
	KindImage  = "image_intel"
)

const nameTimeLayout = "20060102_150405"

var (
	ErrInvalidName = errors.New("Invalid file type")
	ErrNotFound    = errors.New("Report not found")
)

// Store keeps generated reports in a single directory. Reports are written
// once and never modified.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "create reports directory %s", dir)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// FileName builds the report name for a scan kind, target and time.
func FileName(kind, target string, at time.Time) string {
	ts := at.Format(nameTimeLayout)
	switch kind {
	case KindDomain:
		return fmt.Sprintf("domain_%s_%s.txt", sanitize(strings.ReplaceAll(target, ".", "_")), ts)
	case KindIP:
		return fmt.Sprintf("ip_%s_%s.txt", sanitize(strings.ReplaceAll(target, ".", "-")), ts)
	default:
		return fmt.Sprintf("image_intel_%s.txt", ts)
	}
}

// sanitize keeps targets from smuggling separators into file names.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// Save writes text under the name derived from kind, target and at. When two
// scans land on the same second a numeric suffix keeps both reports.
func (s *Store) Save(kind, target, text string, at time.Time) (string, error) {
	base := strings.TrimSuffix(FileName(kind, target, at), ".txt")
	name, err := utils.CreateExclusive(s.dir, base, ".txt", strings.NewReader(text))
	if err != nil {
		return "", errors.Wrap(err, "save report")
	}
	return name, nil
}

// List returns report names, newest first.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "read reports directory")
	}
	type item struct {
		name string
		mod  time.Time
	}
	items := make([]item, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, item{name: e.Name(), mod: info.ModTime()})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].mod.Equal(items[j].mod) {
			return items[i].name > items[j].name
		}
		return items[i].mod.After(items[j].mod)
	})
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.name
	}
	return names, nil
}

// Path resolves a requested report name to its file. Only bare .txt names
// inside the store are accepted.
func (s *Store) Path(name string) (string, error) {
	if !strings.HasSuffix(name, ".txt") {
		return "", ErrInvalidName
	}
	base := filepath.Base(name)
	if base != name || strings.ContainsAny(name, `/\`) || base == ".txt" {
		return "", ErrInvalidName
	}
	p := filepath.Join(s.dir, base)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return p, nil
}

// Open returns the report content for download.
func (s *Store) Open(name string) (*os.File, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, ErrNotFound
	}
	return f, nil
}
