// Package api exposes the e-submission services over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/auth"
	"github.com/dharsanguruparan/esubmit/internal/logging"
	"github.com/dharsanguruparan/esubmit/internal/metrics"
	"github.com/dharsanguruparan/esubmit/internal/service"
	"github.com/dharsanguruparan/esubmit/internal/signing"
)

// maxJSONBody bounds every JSON request body.
const maxJSONBody = 4 << 20

// Services bundles the domain services the handlers call.
type Services struct {
	Accounts    *service.Accounts
	Forms       *service.Forms
	Submissions *service.Submissions
	Files       *service.Files
	Payments    *service.Payments
}

// Options tunes the HTTP layer.
type Options struct {
	CORSOrigins    []string
	MaxUploadBytes int64
	SignedURLTTL   time.Duration
	LoginRate      float64
	LoginBurst     int
	// Backend is reported by /healthz: "sql" or "json".
	Backend string
}

// Server exposes HTTP endpoints for forms, submissions, files and accounts.
type Server struct {
	svc      Services
	sessions *auth.Manager
	signer   *signing.Signer
	opts     Options
	log      *logrus.Entry
	limiter  *ipLimiter
	once     sync.Once
	handler  http.Handler
}

// New constructs a Server.
func New(svc Services, sessions *auth.Manager, signer *signing.Signer, opts Options, log *logrus.Logger) *Server {
	if opts.LoginRate <= 0 {
		opts.LoginRate = 1
	}
	if opts.LoginBurst <= 0 {
		opts.LoginBurst = 10
	}
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = 5 * time.Minute
	}
	return &Server{
		svc:      svc,
		sessions: sessions,
		signer:   signer,
		opts:     opts,
		log:      logging.Component(log, "api"),
		limiter:  newIPLimiter(rate.Limit(opts.LoginRate), opts.LoginBurst),
	}
}

// Handler returns the routed handler with every middleware applied.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() {
		r := mux.NewRouter()
		r.Use(metrics.Middleware)
		s.routes(r)
		s.handler = s.corsMiddleware(s.loggingMiddleware(s.authMiddleware(r)))
	})
	return s.handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	backend := s.opts.Backend
	if backend == "" {
		backend = "json"
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": backend})
}

// respondJSON writes payload with status.
func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.WithError(err).Warn("encode response")
	}
}

type errorBody struct {
	Detail string `json:"detail"`
}

type validationBody struct {
	Valid  bool                `json:"valid"`
	Errors []apperr.FieldError `json:"errors"`
}

// respondError maps err onto the status taxonomy. Validation failures carry
// their itemized field errors.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		s.respondJSON(w, http.StatusBadRequest, validationBody{Valid: false, Errors: verr.Errors})
		return
	}
	status := apperr.HTTPStatus(err)
	detail := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		s.log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		detail = "internal server error"
	}
	s.respondJSON(w, status, errorBody{Detail: detail})
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst as
// is.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := json.NewDecoder(r.Body).Decode(dst)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &tooLarge):
		return fmt.Errorf("%w: request body too large", apperr.ErrTooLarge)
	default:
		return apperr.Invalid("malformed JSON body: %v", err)
	}
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(s.opts.CORSOrigins))
	wildcard := false
	for _, o := range s.opts.CORSOrigins {
		if o == "*" {
			wildcard = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (wildcard || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   sw.status,
			"duration": time.Since(start).String(),
		}).Debug("request")
	})
}

// authMiddleware attaches the principal of a valid bearer token. Requests
// without a valid token continue anonymously; services reject them where a
// principal is required.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token != "" {
			p, err := s.sessions.ValidateSession(r.Context(), token)
			if err == nil {
				r = r.WithContext(auth.WithPrincipal(r.Context(), p))
			} else if !errors.Is(err, apperr.ErrUnauthorized) {
				s.log.WithError(err).Warn("session lookup failed")
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// throttle applies the per-IP login limiter.
func (s *Server) throttle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			s.respondJSON(w, http.StatusTooManyRequests, errorBody{Detail: "too many attempts, slow down"})
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ipLimiter keeps one token bucket per client address.
type ipLimiter struct {
	mu      sync.Mutex
	rate    rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

func newIPLimiter(r rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{rate: r, burst: burst, buckets: make(map[string]*rate.Limiter)}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.buckets[ip]
	if !ok {
		if len(l.buckets) > 10000 {
			l.buckets = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.rate, l.burst)
		l.buckets[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
