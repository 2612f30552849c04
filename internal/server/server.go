// Package server exposes the scans, credential check and report store over
// HTTP.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/shii9/ipwnedyou/internal/auth"
	"github.com/shii9/ipwnedyou/internal/domain"
	"github.com/shii9/ipwnedyou/internal/imageintel"
	"github.com/shii9/ipwnedyou/internal/iposint"
	"github.com/shii9/ipwnedyou/internal/report"
	"github.com/shii9/ipwnedyou/internal/utils"
)

const (
	Version      = "1.0"
	CookieName   = "session_token"
	TimeLayout   = "2006-01-02 15:04:05"
	nameLayout   = "20060102_150405"
	msgNoSession = "Authentication required"
)

type DomainScanner interface {
	Scan(ctx context.Context, domain string) *domain.ScanResult
}

type IPScanner interface {
	Scan(ctx context.Context, ip string) *iposint.ScanResult
}

type ImageAnalyzer interface {
	Analyze(ctx context.Context, path string) *imageintel.AnalysisResult
}

// Deps are the collaborators a Server dispatches to.
type Deps struct {
	Checker  *auth.Checker
	Sessions *auth.SessionStore
	Domains  DomainScanner
	IPs      IPScanner
	Images   ImageAnalyzer
	Reports  *report.Store

	UploadDir         string
	MaxUploadBytes    int64
	AllowedExtensions []string
	SecureCookie      bool
}

type Server struct {
	deps Deps
	log  *zap.Logger
	now  func() time.Time
}

func New(deps Deps, log *zap.Logger) *Server {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 16 << 20
	}
	return &Server{deps: deps, log: utils.OrNop(log), now: time.Now}
}

// Routes returns the router serving every endpoint.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/login", s.handleLogin)
	r.Get("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Post("/api/scan/domain", s.handleScanDomain)
		r.Post("/api/scan/ip", s.handleScanIP)
		r.Post("/api/scan/image", s.handleScanImage)
		r.Get("/api/reports", s.handleListReports)
		r.Get("/download-report/{filename}", s.handleDownloadReport)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, failure("Page not found"))
	})
	return r
}

type identityKey struct{}

// Identity returns the operator name attached by the session middleware.
func Identity(ctx context.Context) string {
	v, _ := ctx.Value(identityKey{}).(string)
	return v
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(CookieName)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, failure(msgNoSession))
			return
		}
		identity, ok := s.deps.Sessions.Lookup(c.Value)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, failure(msgNoSession))
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type message struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func failure(msg string) message { return message{Success: false, Message: msg} }

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) allowedExtension(filename string) bool {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 {
		return false
	}
	ext := strings.ToLower(filename[idx+1:])
	for _, allowed := range s.deps.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}
