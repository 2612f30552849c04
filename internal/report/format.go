// Package report renders scan results as plain-text reports and keeps them
// on disk for listing and download.
package report

import (
	"fmt"
	"strings"

	"github.com/shii9/ipwnedyou/internal/domain"
	"github.com/shii9/ipwnedyou/internal/imageintel"
	"github.com/shii9/ipwnedyou/internal/iposint"
)

const (
	NotAvailable = "N/A"
	Footer       = "Generated by I Pwned You OSINT Platform"

	heavyRule = "═══════════════════════════════════════════════════════"
	lightRule = "─────────────────────────────────────────────────────"
)

func banner(b *strings.Builder, title string) {
	b.WriteString("\n" + heavyRule + "\n")
	b.WriteString(center(title) + "\n")
	b.WriteString(heavyRule + "\n\n")
}

func section(b *strings.Builder, title string) {
	b.WriteString("\n" + lightRule + "\n")
	b.WriteString(title + "\n")
	b.WriteString(lightRule + "\n")
}

func footer(b *strings.Builder, lines ...string) {
	b.WriteString("\n" + heavyRule + "\n")
	for _, l := range lines {
		b.WriteString(center(l) + "\n")
	}
	b.WriteString(heavyRule + "\n")
}

func center(s string) string {
	pad := (len([]rune(heavyRule)) - len([]rune(s))) / 2
	if pad <= 0 {
		return s
	}
	return strings.Repeat(" ", pad) + s
}

func na(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotAvailable
	}
	return s
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func list(b *strings.Builder, items []string, marker, empty string) {
	if len(items) == 0 {
		b.WriteString(empty + "\n")
		return
	}
	for _, it := range items {
		b.WriteString(marker + it + "\n")
	}
}

// FormatDomain renders a domain scan. A nil result renders as an empty scan.
func FormatDomain(r *domain.ScanResult) string {
	if r == nil {
		r = &domain.ScanResult{}
	}
	var b strings.Builder
	banner(&b, "DOMAIN OSINT SCAN REPORT")
	fmt.Fprintf(&b, "Target Domain: %s\n", na(r.Domain))
	fmt.Fprintf(&b, "Scan Time: %s\n", na(r.Timestamp))
	fmt.Fprintf(&b, "Status: %s\n", na(r.Status))

	section(&b, "DNS RECORDS")
	b.WriteString("IP Addresses:\n")
	list(&b, r.IPAddresses, "  • ", "  "+NotAvailable)
	b.WriteString("\nMail Servers (MX):\n")
	list(&b, r.MXRecords, "  • ", "  "+NotAvailable)
	b.WriteString("\nName Servers (NS):\n")
	list(&b, r.NameServers, "  • ", "  "+NotAvailable)
	fmt.Fprintf(&b, "\nSPF Record: %s\n", na(r.SPF))

	section(&b, "SUBDOMAINS")
	list(&b, r.Subdomains, "  • ", "No subdomains discovered")

	section(&b, "WHOIS INFORMATION")
	if w := r.Whois; w != nil {
		fmt.Fprintf(&b, "Registrar: %s\n", na(w.Registrar))
		fmt.Fprintf(&b, "Creation Date: %s\n", na(w.CreationDate))
		fmt.Fprintf(&b, "Expiration Date: %s\n", na(w.ExpirationDate))
		fmt.Fprintf(&b, "Updated Date: %s\n", na(w.UpdatedDate))
		if len(w.NameServers) > 0 {
			fmt.Fprintf(&b, "Registered Name Servers: %s\n", strings.Join(w.NameServers, ", "))
		}
	} else {
		b.WriteString("No WHOIS data available\n")
	}

	if len(r.Errors) > 0 {
		section(&b, "ERRORS")
		list(&b, r.Errors, "❌ ", "")
	}

	footer(&b, Footer)
	return b.String()
}

// FormatIP renders an IP scan.
func FormatIP(r *iposint.ScanResult) string {
	if r == nil {
		r = &iposint.ScanResult{}
	}
	var b strings.Builder
	banner(&b, "IP OSINT SCAN REPORT")
	fmt.Fprintf(&b, "Target IP: %s\n", na(r.IP))
	fmt.Fprintf(&b, "Scan Time: %s\n", na(r.Timestamp))
	fmt.Fprintf(&b, "Status: %s\n", na(r.Status))

	section(&b, "GEOLOCATION INFORMATION")
	if g := r.Geolocation; g != nil {
		rows := []struct{ label, value string }{
			{"Country", g.Country},
			{"Country Code", g.CountryCode},
			{"Region", g.Region},
			{"Region Code", g.RegionCode},
			{"City", g.City},
			{"Zip Code", g.ZipCode},
			{"Latitude", g.Latitude},
			{"Longitude", g.Longitude},
			{"Timezone", g.Timezone},
			{"ISP", g.ISP},
			{"Organization", g.Organization},
			{"ASN", g.ASN},
		}
		for _, row := range rows {
			fmt.Fprintf(&b, "%s: %s\n", row.label, na(row.value))
		}
	} else {
		b.WriteString("No geolocation data available\n")
	}

	section(&b, "REVERSE DNS")
	hostname := r.ReverseDNS
	if strings.TrimSpace(hostname) == "" {
		hostname = "Not available"
	}
	fmt.Fprintf(&b, "Hostname: %s\n", hostname)

	if len(r.Limitations) > 0 {
		section(&b, "LIMITATIONS")
		list(&b, r.Limitations, "⚠ ", "")
	}
	if len(r.Errors) > 0 {
		section(&b, "ERRORS")
		list(&b, r.Errors, "❌ ", "")
	}

	footer(&b, Footer)
	return b.String()
}

// FormatImage renders an image analysis.
func FormatImage(r *imageintel.AnalysisResult) string {
	if r == nil {
		r = &imageintel.AnalysisResult{}
	}
	var b strings.Builder
	banner(&b, "IMAGE INTELLIGENCE ANALYSIS REPORT")
	fmt.Fprintf(&b, "Analysis Timestamp: %s\n", na(r.Timestamp))
	fmt.Fprintf(&b, "Filename: %s\n", na(r.Filename))
	fmt.Fprintf(&b, "File Size: %d bytes\n", r.FileSize)
	fmt.Fprintf(&b, "Image Dimensions: %s\n", na(r.Dimensions))
	fmt.Fprintf(&b, "Status: %s\n", na(r.Status))

	section(&b, "EXIF METADATA ANALYSIS")
	exif := r.EXIF
	fmt.Fprintf(&b, "EXIF Available: %s\n", yesNo(exif.Available))
	if exif.Available {
		if gps := exif.GPS; gps != nil {
			b.WriteString("\n📍 GPS COORDINATES FOUND:\n")
			fmt.Fprintf(&b, "  Latitude: %v\n", gps.Latitude)
			fmt.Fprintf(&b, "  Longitude: %v\n", gps.Longitude)
			fmt.Fprintf(&b, "  %s\n", gps.Disclaimer)
		}
		if cam := exif.Camera; cam != nil {
			b.WriteString("\n📷 CAMERA INFORMATION:\n")
			fmt.Fprintf(&b, "  Make: %s\n", na(cam.Make))
			fmt.Fprintf(&b, "  Model: %s\n", na(cam.Model))
			fmt.Fprintf(&b, "  Lens: %s\n", na(cam.Lens))
			fmt.Fprintf(&b, "  %s\n", cam.Disclaimer)
		}
		if exif.Timestamp != "" {
			b.WriteString("\n🕐 TIMESTAMP:\n")
			fmt.Fprintf(&b, "  Original: %s\n", exif.Timestamp)
			if exif.TimestampDisclaimer != "" {
				fmt.Fprintf(&b, "  %s\n", exif.TimestampDisclaimer)
			}
		}
		if exif.Software != "" {
			b.WriteString("\n💾 SOFTWARE:\n")
			fmt.Fprintf(&b, "  %s\n", exif.Software)
		}
	}
	fmt.Fprintf(&b, "\n%s\n", exif.Disclaimer)

	section(&b, "OCR TEXT EXTRACTION")
	ocr := r.OCR
	method := ocr.Method
	if method == "" {
		method = "Unknown"
	}
	fmt.Fprintf(&b, "Method: %s\n", method)
	fmt.Fprintf(&b, "Text Found: %s\n", yesNo(ocr.TextFound))
	if ocr.TextFound {
		dashes := strings.Repeat("-", 50)
		b.WriteString("\n📝 EXTRACTED TEXT:\n")
		b.WriteString(dashes + "\n")
		b.WriteString(ocr.ExtractedText + "\n")
		b.WriteString(dashes + "\n")
	}
	fmt.Fprintf(&b, "\n%s\n", ocr.Disclaimer)

	section(&b, "GEOLOCATION ANALYSIS")
	loc := r.Location
	if loc.City != "" {
		fmt.Fprintf(&b, "City: %s\n", na(loc.City))
		fmt.Fprintf(&b, "State/Region: %s\n", na(loc.State))
		fmt.Fprintf(&b, "Country: %s\n", na(loc.Country))
		fmt.Fprintf(&b, "Full Address: %s\n", na(loc.FullAddress))
		b.WriteString("\n🗺️ MAP LINKS:\n")
		fmt.Fprintf(&b, "  OpenStreetMap: %s\n", na(loc.MapLink))
		fmt.Fprintf(&b, "  Google Maps: %s\n", na(loc.GoogleMapsLink))
	}
	fmt.Fprintf(&b, "\n%s\n", loc.Disclaimer)

	section(&b, "REVERSE IMAGE SEARCH (MANUAL VERIFICATION)")
	rs := r.ReverseSearch
	fmt.Fprintf(&b, "%s\n\n", rs.Instructions)
	b.WriteString("🔍 SEARCH ENGINES:\n")
	for _, e := range rs.Engines {
		fmt.Fprintf(&b, "  • %s: %s\n", e.Name, e.URL)
	}
	fmt.Fprintf(&b, "\nFile Hash (SHA-256): %s\n", na(rs.FileHashSHA256))
	fmt.Fprintf(&b, "\n%s\n", rs.Disclaimer)

	section(&b, "ANALYST ACTION ITEMS")
	for _, note := range r.AnalystNotes {
		b.WriteString(note + "\n")
	}
	fmt.Fprintf(&b, "\n%s\n", r.OverallDisclaimer)

	footer(&b, Footer, "Professional Image Intelligence Tool")
	return b.String()
}
