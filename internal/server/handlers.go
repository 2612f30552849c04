package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/shii9/ipwnedyou/internal/domain"
	"github.com/shii9/ipwnedyou/internal/imageintel"
	"github.com/shii9/ipwnedyou/internal/iposint"
	"github.com/shii9/ipwnedyou/internal/ocr"
	"github.com/shii9/ipwnedyou/internal/report"
	"github.com/shii9/ipwnedyou/internal/utils"
)

type health struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, health{Status: "healthy", Version: Version, Timestamp: s.now().Format(TimeLayout)})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, failure(fmt.Sprintf("Authentication error: %v", err)))
		return
	}
	res := s.deps.Checker.Validate(req.Username, req.Password)
	if !res.Accepted {
		s.log.Warn("login rejected", zap.String("username", strings.TrimSpace(req.Username)))
		writeJSON(w, http.StatusOK, message{Success: false, Message: res.Message})
		return
	}

	token := s.deps.Sessions.Create(res.Identity)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.deps.SecureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.deps.Sessions.Lifetime().Seconds()),
	})
	s.log.Info("login accepted", zap.String("username", res.Identity))
	writeJSON(w, http.StatusOK, message{Success: true, Message: res.Message})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(CookieName); err == nil {
		s.deps.Sessions.Revoke(c.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	writeJSON(w, http.StatusOK, message{Success: true, Message: "Logged out"})
}

type domainRequest struct {
	Domain string `json:"domain"`
}

type domainResponse struct {
	*domain.ScanResult
	Success    bool   `json:"success"`
	ReportFile string `json:"report_file"`
}

func (s *Server) handleScanDomain(w http.ResponseWriter, r *http.Request) {
	var req domainRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, failure(fmt.Sprintf("Scan error: %v", err)))
		return
	}
	target, err := domain.NormalizeTarget(req.Domain)
	if err != nil {
		writeJSON(w, http.StatusOK, failure(err.Error()))
		return
	}

	at := s.now()
	res := s.deps.Domains.Scan(r.Context(), target)
	name, err := s.deps.Reports.Save(report.KindDomain, target, report.FormatDomain(res), at)
	if err != nil {
		s.log.Error("save domain report", zap.String("domain", target), zap.Error(err))
		writeJSON(w, http.StatusOK, failure(fmt.Sprintf("Scan error: %v", err)))
		return
	}
	writeJSON(w, http.StatusOK, domainResponse{ScanResult: res, Success: true, ReportFile: name})
}

type ipRequest struct {
	IP string `json:"ip"`
}

type ipResponse struct {
	*iposint.ScanResult
	Success    bool   `json:"success"`
	ReportFile string `json:"report_file"`
}

func (s *Server) handleScanIP(w http.ResponseWriter, r *http.Request) {
	var req ipRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusOK, failure(fmt.Sprintf("Scan error: %v", err)))
		return
	}
	target := strings.TrimSpace(req.IP)
	if target == "" {
		writeJSON(w, http.StatusOK, failure("IP address is required"))
		return
	}

	at := s.now()
	res := s.deps.IPs.Scan(r.Context(), target)
	name, err := s.deps.Reports.Save(report.KindIP, target, report.FormatIP(res), at)
	if err != nil {
		s.log.Error("save ip report", zap.String("ip", target), zap.Error(err))
		writeJSON(w, http.StatusOK, failure(fmt.Sprintf("Scan error: %v", err)))
		return
	}
	writeJSON(w, http.StatusOK, ipResponse{ScanResult: res, Success: true, ReportFile: name})
}

type imageResponse struct {
	*imageintel.AnalysisResult
	Success          bool   `json:"success"`
	ReportFile       string `json:"report_file"`
	UploadedFilename string `json:"uploaded_filename"`
}

func (s *Server) handleScanImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.deps.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeJSON(w, http.StatusRequestEntityTooLarge,
				failure(fmt.Sprintf("File too large. Maximum size is %dMB", s.deps.MaxUploadBytes/(1024*1024))))
			return
		}
		writeJSON(w, http.StatusOK, failure("No image file uploaded"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusOK, failure("No image file uploaded"))
		return
	}
	defer file.Close()

	original := filepath.Base(strings.ReplaceAll(header.Filename, `\`, "/"))
	if header.Filename == "" || original == "." || original == "/" {
		writeJSON(w, http.StatusOK, failure("No file selected"))
		return
	}
	if !s.allowedExtension(original) {
		writeJSON(w, http.StatusOK, failure("Invalid file type. Allowed: "+strings.Join(s.deps.AllowedExtensions, ", ")))
		return
	}

	at := s.now()
	stored, err := s.saveUpload(original, at, file)
	if err != nil {
		s.log.Error("save upload", zap.String("file", original), zap.Error(err))
		writeJSON(w, http.StatusOK, imageFailure(err))
		return
	}
	path := filepath.Join(s.deps.UploadDir, stored)
	s.log.Info("image uploaded", zap.String("file", stored), zap.String("operator", Identity(r.Context())))

	res := s.deps.Images.Analyze(r.Context(), path)
	name, err := s.deps.Reports.Save(report.KindImage, "", report.FormatImage(res), at)
	if err != nil {
		s.log.Error("save image report", zap.String("file", stored), zap.Error(err))
		writeJSON(w, http.StatusOK, imageFailure(err))
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{
		AnalysisResult:   res,
		Success:          true,
		ReportFile:       name,
		UploadedFilename: stored,
	})
}

func imageFailure(err error) message {
	return message{
		Success: false,
		Message: fmt.Sprintf("Image analysis error: %v", err),
		Hint:    "Ensure Tesseract OCR is installed: " + ocr.InstallURL,
	}
}

// saveUpload stores the upload as img_<time>_<name>. A name already on disk
// gets a numeric suffix before the extension.
func (s *Server) saveUpload(original string, at time.Time, src io.Reader) (string, error) {
	if err := os.MkdirAll(s.deps.UploadDir, 0755); err != nil {
		return "", errors.Wrap(err, "create upload directory")
	}
	ext := filepath.Ext(original)
	stem := fmt.Sprintf("img_%s_%s", at.Format(nameLayout), strings.TrimSuffix(original, ext))
	name, err := utils.CreateExclusive(s.deps.UploadDir, stem, ext, src)
	return name, errors.Wrap(err, "store upload")
}

type reportsResponse struct {
	Success bool     `json:"success"`
	Reports []string `json:"reports"`
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	names, err := s.deps.Reports.List()
	if err != nil {
		s.log.Error("list reports", zap.Error(err))
		names = []string{}
	}
	writeJSON(w, http.StatusOK, reportsResponse{Success: true, Reports: names})
}

func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	f, err := s.deps.Reports.Open(name)
	switch {
	case errors.Is(err, report.ErrInvalidName):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, report.ErrNotFound.Error(), http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, fmt.Sprintf("Error downloading report: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}
