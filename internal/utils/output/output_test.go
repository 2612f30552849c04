package output

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Domain string   `json:"domain" yaml:"domain"`
	IPs    []string `json:"ip_addresses" yaml:"ip_addresses"`
}

func TestRenderFormats(t *testing.T) {
	s := sample{Domain: "example.com", IPs: []string{"93.184.216.34"}}

	js, err := Render(s, "json")
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(string(js), `"ip_addresses"`) {
		t.Fatalf("json missing field: %s", js)
	}

	y, err := Render(s, "yaml")
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !strings.Contains(string(y), "domain: example.com") {
		t.Fatalf("yaml missing field: %s", y)
	}

	if _, err := Render(s, "normal"); err == nil {
		t.Fatalf("expected error rendering struct as normal")
	}
	if _, err := Render(s, "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestWriteAndPrint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := WriteToFile("report body", "normal", path); err != nil {
		t.Fatalf("WriteToFile failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "report body" {
		t.Fatalf("file content = %q", data)
	}

	var buf bytes.Buffer
	if err := PrintToConsole(&buf, "line", "normal"); err != nil {
		t.Fatalf("PrintToConsole failed: %v", err)
	}
	if buf.String() != "line\n" {
		t.Fatalf("console = %q", buf.String())
	}
}
