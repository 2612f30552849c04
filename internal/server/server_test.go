package server

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/shii9/ipwnedyou/internal/auth"
	"github.com/shii9/ipwnedyou/internal/domain"
	"github.com/shii9/ipwnedyou/internal/imageintel"
	"github.com/shii9/ipwnedyou/internal/iposint"
	"github.com/shii9/ipwnedyou/internal/report"
)

type fakeDomains struct{ got string }

func (f *fakeDomains) Scan(ctx context.Context, d string) *domain.ScanResult {
	f.got = d
	return &domain.ScanResult{Domain: d, Status: domain.StatusActive, IPAddresses: []string{"93.184.216.34"}}
}

type fakeIPs struct{ calls int }

func (f *fakeIPs) Scan(ctx context.Context, ip string) *iposint.ScanResult {
	f.calls++
	if !iposint.ValidIPv4(ip) {
		return &iposint.ScanResult{IP: ip, Status: iposint.StatusInvalid, Errors: []string{iposint.MsgInvalid}}
	}
	return &iposint.ScanResult{IP: ip, Status: iposint.StatusActive}
}

type fakeImages struct{ path string }

func (f *fakeImages) Analyze(ctx context.Context, path string) *imageintel.AnalysisResult {
	f.path = path
	return &imageintel.AnalysisResult{Filename: filepath.Base(path), Status: imageintel.StatusComplete}
}

type fixture struct {
	srv     *httptest.Server
	domains *fakeDomains
	ips     *fakeIPs
	images  *fakeImages
	uploads string
	reports *report.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := report.NewStore(filepath.Join(dir, "reports"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	f := &fixture{
		domains: &fakeDomains{},
		ips:     &fakeIPs{},
		images:  &fakeImages{},
		uploads: filepath.Join(dir, "uploads"),
		reports: store,
	}
	s := New(Deps{
		Checker:           auth.NewChecker("admin", "admin123"),
		Sessions:          auth.NewSessionStore(30 * time.Minute),
		Domains:           f.domains,
		IPs:               f.ips,
		Images:            f.images,
		Reports:           store,
		UploadDir:         f.uploads,
		MaxUploadBytes:    64 * 1024,
		AllowedExtensions: []string{"png", "jpg", "jpeg", "gif", "bmp"},
	}, nil)
	s.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	f.srv = httptest.NewServer(s.Routes())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) login(t *testing.T, user, pass string) (*http.Cookie, map[string]interface{}) {
	t.Helper()
	body := strings.NewReader(`{"username":"` + user + `","password":"` + pass + `"}`)
	resp, err := http.Post(f.srv.URL+"/login", "application/json", body)
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	defer resp.Body.Close()
	out := decode(t, resp.Body)
	for _, c := range resp.Cookies() {
		if c.Name == CookieName {
			return c, out
		}
	}
	return nil, out
}

func (f *fixture) do(t *testing.T, method, path, contentType string, body io.Reader, cookie *http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decode(t *testing.T, r io.Reader) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/health", "", nil, nil)
	defer resp.Body.Close()
	out := decode(t, resp.Body)
	if out["status"] != "healthy" || out["version"] != Version || out["timestamp"] != "2024-01-01 12:00:00" {
		t.Fatalf("health = %v", out)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	cookie, out := f.login(t, "admin", "wrong")
	if cookie != nil || out["success"] != false || out["message"] != auth.MsgRejected {
		t.Fatalf("rejected login = %v, cookie %v", out, cookie)
	}

	cookie, out = f.login(t, "admin", "admin123")
	if cookie == nil || out["success"] != true || out["message"] != auth.MsgAccepted {
		t.Fatalf("accepted login = %v, cookie %v", out, cookie)
	}
}

func TestScansRequireSession(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/scan/ip", "application/json", strings.NewReader(`{"ip":"8.8.8.8"}`), nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if f.ips.calls != 0 {
		t.Fatalf("scanner called without session")
	}

	bogus := &http.Cookie{Name: CookieName, Value: "not-a-session"}
	resp2 := f.do(t, http.MethodGet, "/api/reports", "", nil, bogus)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp2.StatusCode)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newFixture(t)
	cookie, _ := f.login(t, "admin", "admin123")
	resp := f.do(t, http.MethodGet, "/logout", "", nil, cookie)
	resp.Body.Close()

	resp = f.do(t, http.MethodGet, "/api/reports", "", nil, cookie)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status after logout = %d", resp.StatusCode)
	}
}

func TestScanDomain(t *testing.T) {
	f := newFixture(t)
	cookie, _ := f.login(t, "admin", "admin123")

	resp := f.do(t, http.MethodPost, "/api/scan/domain", "application/json", strings.NewReader(`{"domain":"https://www.Example.com/path"}`), cookie)
	defer resp.Body.Close()
	out := decode(t, resp.Body)
	if out["success"] != true || out["domain"] != "example.com" || out["status"] != domain.StatusActive {
		t.Fatalf("response = %v", out)
	}
	if f.domains.got != "example.com" {
		t.Fatalf("scanned %q", f.domains.got)
	}
	if out["report_file"] != "domain_example_com_20240101_120000.txt" {
		t.Fatalf("report_file = %v", out["report_file"])
	}
	if _, err := os.Stat(filepath.Join(f.reports.Dir(), "domain_example_com_20240101_120000.txt")); err != nil {
		t.Fatalf("report not written: %v", err)
	}

	resp2 := f.do(t, http.MethodPost, "/api/scan/domain", "application/json", strings.NewReader(`{"domain":"  "}`), cookie)
	defer resp2.Body.Close()
	out = decode(t, resp2.Body)
	if out["success"] != false || out["message"] != "Domain is required" {
		t.Fatalf("empty domain response = %v", out)
	}
}

func TestScanIP(t *testing.T) {
	f := newFixture(t)
	cookie, _ := f.login(t, "admin", "admin123")

	resp := f.do(t, http.MethodPost, "/api/scan/ip", "application/json", strings.NewReader(`{"ip":"999.999.999.999"}`), cookie)
	defer resp.Body.Close()
	out := decode(t, resp.Body)
	if out["success"] != true || out["status"] != iposint.StatusInvalid {
		t.Fatalf("response = %v", out)
	}
	if errs, _ := out["errors"].([]interface{}); len(errs) != 1 {
		t.Fatalf("errors = %v", out["errors"])
	}
	if out["report_file"] != "ip_999-999-999-999_20240101_120000.txt" {
		t.Fatalf("report_file = %v", out["report_file"])
	}

	resp2 := f.do(t, http.MethodPost, "/api/scan/ip", "application/json", strings.NewReader(`{"ip":""}`), cookie)
	defer resp2.Body.Close()
	out = decode(t, resp2.Body)
	if out["success"] != false || out["message"] != "IP address is required" {
		t.Fatalf("empty ip response = %v", out)
	}
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write(content)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestScanImage(t *testing.T) {
	f := newFixture(t)
	cookie, _ := f.login(t, "admin", "admin123")

	body, ct := multipartBody(t, "image", "photo.PNG", []byte("fake image bytes"))
	resp := f.do(t, http.MethodPost, "/api/scan/image", ct, body, cookie)
	defer resp.Body.Close()
	out := decode(t, resp.Body)
	if out["success"] != true || out["status"] != imageintel.StatusComplete {
		t.Fatalf("response = %v", out)
	}
	if out["uploaded_filename"] != "img_20240101_120000_photo.PNG" {
		t.Fatalf("uploaded_filename = %v", out["uploaded_filename"])
	}
	if out["report_file"] != "image_intel_20240101_120000.txt" {
		t.Fatalf("report_file = %v", out["report_file"])
	}
	stored, err := os.ReadFile(filepath.Join(f.uploads, "img_20240101_120000_photo.PNG"))
	if err != nil || string(stored) != "fake image bytes" {
		t.Fatalf("stored upload = %q, %v", stored, err)
	}
	if f.images.path != filepath.Join(f.uploads, "img_20240101_120000_photo.PNG") {
		t.Fatalf("analyzed %q", f.images.path)
	}
}

func TestScanImageSameNameSameSecond(t *testing.T) {
	f := newFixture(t)
	cookie, _ := f.login(t, "admin", "admin123")

	var names []string
	for _, content := range []string{"first upload", "second upload"} {
		body, ct := multipartBody(t, "image", "photo.png", []byte(content))
		resp := f.do(t, http.MethodPost, "/api/scan/image", ct, body, cookie)
		out := decode(t, resp.Body)
		resp.Body.Close()
		name, _ := out["uploaded_filename"].(string)
		names = append(names, name)
	}
	if names[0] != "img_20240101_120000_photo.png" || names[1] != "img_20240101_120000_photo_1.png" {
		t.Fatalf("uploaded names = %v", names)
	}

	first, err := os.ReadFile(filepath.Join(f.uploads, names[0]))
	if err != nil || string(first) != "first upload" {
		t.Fatalf("first upload = %q, %v", first, err)
	}
	second, err := os.ReadFile(filepath.Join(f.uploads, names[1]))
	if err != nil || string(second) != "second upload" {
		t.Fatalf("second upload = %q, %v", second, err)
	}
	if f.images.path != filepath.Join(f.uploads, names[1]) {
		t.Fatalf("analyzed %q", f.images.path)
	}
}

func TestScanImageRejects(t *testing.T) {
	f := newFixture(t)
	cookie, _ := f.login(t, "admin", "admin123")

	body, ct := multipartBody(t, "image", "notes.txt", []byte("hello"))
	resp := f.do(t, http.MethodPost, "/api/scan/image", ct, body, cookie)
	out := decode(t, resp.Body)
	resp.Body.Close()
	if out["success"] != false || !strings.HasPrefix(out["message"].(string), "Invalid file type. Allowed: png") {
		t.Fatalf("response = %v", out)
	}

	body, ct = multipartBody(t, "other", "photo.png", []byte("hello"))
	resp = f.do(t, http.MethodPost, "/api/scan/image", ct, body, cookie)
	out = decode(t, resp.Body)
	resp.Body.Close()
	if out["message"] != "No image file uploaded" {
		t.Fatalf("response = %v", out)
	}

	body, ct = multipartBody(t, "image", "big.png", bytes.Repeat([]byte("x"), 80*1024))
	resp = f.do(t, http.MethodPost, "/api/scan/image", ct, body, cookie)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if f.images.path != "" {
		t.Fatalf("analyzer ran for rejected upload")
	}
}

func TestReportsListAndDownload(t *testing.T) {
	f := newFixture(t)
	cookie, _ := f.login(t, "admin", "admin123")

	name, err := f.reports.Save(report.KindIP, "1.1.1.1", "report body", time.Now())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	resp := f.do(t, http.MethodGet, "/api/reports", "", nil, cookie)
	out := decode(t, resp.Body)
	resp.Body.Close()
	reports, _ := out["reports"].([]interface{})
	if len(reports) != 1 || reports[0] != name {
		t.Fatalf("reports = %v", out)
	}

	resp = f.do(t, http.MethodGet, "/download-report/"+name, "", nil, cookie)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "report body" {
		t.Fatalf("download = %d %q", resp.StatusCode, body)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Fatalf("content disposition = %q", cd)
	}

	resp = f.do(t, http.MethodGet, "/download-report/report.pdf", "", nil, cookie)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("pdf status = %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/download-report/missing.txt", "", nil, cookie)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing status = %d", resp.StatusCode)
	}
}
