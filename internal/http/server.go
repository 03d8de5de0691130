// Package http provides HTTP server and handler implementations.
package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"conti/internal/cache"
	"conti/internal/config"
	"conti/internal/core"
	applog "conti/internal/log"
	"conti/internal/services"
	"conti/internal/storage"
	"conti/web"
)

// Server wraps the HTTP server with the ledger service, templates and
// the per-book view caches.
type Server struct {
	httpServer *http.Server
	service    *services.LedgerService
	storage    *storage.SQLiteRepository
	templates  *template.Template

	logger    *applog.Logger
	accessLog *applog.StructuredLogger

	guard        *requestGuard
	cacheManager *cache.Manager

	balancesCache *cache.LRUCache[balancesView]

	shutdownOnce sync.Once
}

// NewServer builds the server, parses the embedded templates and wires
// all routes.
func NewServer(cfg *config.Config, service *services.LedgerService, repo *storage.SQLiteRepository) (*Server, error) {
	templates, err := template.New("").Funcs(template.FuncMap{
		"euros": formatEuros,
		"date":  func(t time.Time) string { return t.Format("2006-01-02") },
	}).ParseFS(web.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	s := &Server{
		service:       service,
		storage:       repo,
		templates:     templates,
		logger:        logger,
		accessLog:     applog.NewStructuredLogger(logger),
		guard:         newRequestGuard(cfg.RateLimitPerMinute, cfg.TrustedProxies),
		cacheManager:  cache.NewManager(),
		balancesCache: cache.NewLRUCache[balancesView](64, 5*time.Minute),
	}
	s.cacheManager.Register(s.balancesCache)
	s.cacheManager.StartCleanup(time.Minute)

	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.HandleFunc("/books", s.handleCreateBook)
	mux.HandleFunc("/books/rename", s.handleRenameBook)
	mux.HandleFunc("/books/delete", s.handleDeleteBook)
	mux.HandleFunc("/book", s.handleBookPage)

	mux.HandleFunc("/categories", s.handleCreateCategory)
	mux.HandleFunc("/categories/update", s.handleUpdateCategory)
	mux.HandleFunc("/categories/delete", s.handleDeleteCategory)

	mux.HandleFunc("/accounts", s.handleCreateAccount)
	mux.HandleFunc("/accounts/update", s.handleUpdateAccount)
	mux.HandleFunc("/accounts/delete", s.handleDeleteAccount)

	mux.HandleFunc("/transactions", s.handleCreateTransaction)
	mux.HandleFunc("/transactions/update", s.handleUpdateTransaction)
	mux.HandleFunc("/transactions/delete", s.handleDeleteTransactions)
	mux.HandleFunc("/transactions/highlight", s.handleHighlight)

	mux.HandleFunc("/trash/restore", s.handleRestore)
	mux.HandleFunc("/trash/purge", s.handlePurge)

	mux.HandleFunc("/ui/books", s.handleBooksPartial)
	mux.HandleFunc("/ui/transactions", s.handleTransactionsPartial)
	mux.HandleFunc("/ui/balances", s.handleBalancesPartial)
	mux.HandleFunc("/ui/accounts", s.handleAccountsPartial)
	mux.HandleFunc("/ui/categories", s.handleCategoriesPartial)
	mux.HandleFunc("/ui/trash", s.handleTrashPartial)

	staticServer := http.FileServer(http.FS(web.StaticFS))
	mux.Handle("/static/", staticCacheControl(staticServer))

	handler := applog.Middleware(logger)(s.withSecurityHeaders(mux))
	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start runs the server until it is shut down.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops background goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.guard.stop()
		s.cacheManager.Stop()
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}

// responseWriter captures the status code for the access log.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// withSecurityHeaders applies the security baseline around every
// request: client IP resolution, scan rejection, rate limiting,
// standard headers and the access log.
func (s *Server) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := generateRequestID()
		clientIP := s.guard.clientIP(r)

		if s.guard.looksLikeScan(r) {
			s.logger.Warn("Scan request blocked",
				applog.FieldRequestID, requestID, applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path,
				applog.FieldUserAgent, r.Header.Get("User-Agent"))
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if !s.guard.allow(clientIP) {
			s.logger.Warn("Rate limit exceeded",
				applog.FieldRequestID, requestID,
				applog.FieldClientIP, clientIP, applog.FieldPath, r.URL.Path)
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Request-ID", requestID)

		// Requests log under their request ID from here on.
		logger := applog.FromContext(r.Context()).With(applog.FieldRequestID, requestID)
		ctx := context.WithValue(r.Context(), applog.LoggerContextKey, logger)
		r = r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.accessLog.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	})
}

func staticCacheControl(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports readiness only when the database answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.storage.ListBooks(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Readiness check failed", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// render executes a template into the response, reporting a 500 when
// the template fails before any output was written.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.ErrorContext(r.Context(), "Template render failed", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// invalidateBook drops the cached balance view after any write that can
// move a balance.
func (s *Server) invalidateBook(bookID string) {
	s.balancesCache.Delete(bookID)
}

// errorResponseFor maps domain errors onto HTTP responses: validation
// failures are 422, reference conflicts and system transactions are
// 409, missing rows are 404.
func errorResponseFor(err error) *HTMXResponseBuilder {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NotFoundError("Not found")
	case errors.Is(err, core.ErrStillReferenced),
		errors.Is(err, core.ErrSystemTransaction):
		return ConflictError(err.Error())
	case errors.Is(err, core.ErrInsufficientEntries),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidSide),
		errors.Is(err, core.ErrUnresolvedAccount),
		errors.Is(err, core.ErrUnbalanced),
		errors.Is(err, core.ErrUnknownAccount),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrNameTooLong),
		errors.Is(err, core.ErrInvalidCategoryType),
		errors.Is(err, core.ErrInvalidHighlight):
		return UnprocessableEntityError(err.Error())
	default:
		return InternalServerError("Internal error")
	}
}

// SecurityStats exposes the guard counters for the log and tests.
func (s *Server) SecurityStats() (throttled, scansBlocked int64) {
	return s.guard.throttled.Load(), s.guard.scansBlocked.Load()
}
