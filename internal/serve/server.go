// Package serve provides the HTTP server that answers Twilio SMS webhooks
// and exposes a small read-only API over the message log.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jimshare/bae-ai/internal/chat"
	"github.com/jimshare/bae-ai/internal/config"
	"github.com/jimshare/bae-ai/internal/store"
	"github.com/jimshare/bae-ai/internal/twilio"
)

const (
	defaultPort        = 8000
	defaultRESTWorkers = 4
	shutdownTimeout    = 5 * time.Second
	deliveryTimeout    = 30 * time.Second
)

const requestIDHeader = "X-Request-Id"

// Replier produces SMS replies. *chat.Service implements it.
type Replier interface {
	Reply(ctx context.Context, msg twilio.InboundMessage) (chat.Reply, error)
	MarkDelivered(id string, deliveryErr error)
}

// Sender delivers outbound SMS. *twilio.Client implements it.
type Sender interface {
	SendMessage(ctx context.Context, from, to, body string) (*twilio.MessageResource, error)
}

// Config configures a Server.
type Config struct {
	Host          string
	Port          int
	PublicBaseURL string
	ReplyMode     string
	APIKey        string
	RESTWorkers   int

	ValidateSignature bool
	AccountSID        string
	AuthToken         string
	// FromNumber is the sender for REST replies; the inbound To number when empty.
	FromNumber string

	Chat   Replier
	Sender Sender
	Store  store.Recorder
	Logger *zap.Logger

	Version string
}

// Server answers webhooks.
type Server struct {
	cfg       Config
	validator *twilio.RequestValidator
	logger    *zap.Logger
	router    chi.Router
	server    *http.Server

	// REST deliveries in flight, bounded by deliverySlots.
	deliverySlots chan struct{}
	deliveries    sync.WaitGroup

	started time.Time
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.ReplyMode == "" {
		cfg.ReplyMode = config.ReplyModeText
	}
	if cfg.RESTWorkers <= 0 {
		cfg.RESTWorkers = defaultRESTWorkers
	}
	if cfg.Store == nil {
		cfg.Store = store.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
}

// ValidateConfig checks server configuration for security and completeness.
func ValidateConfig(cfg Config) error {
	applyDefaults(&cfg)

	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d (must be 1-65535)", cfg.Port)
	}
	switch cfg.ReplyMode {
	case config.ReplyModeText, config.ReplyModeTwiML, config.ReplyModeREST:
	default:
		return fmt.Errorf("invalid reply mode %q (valid: text, twiml, rest)", cfg.ReplyMode)
	}
	if cfg.PublicBaseURL != "" {
		parsed, err := url.Parse(cfg.PublicBaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid public base URL %q", cfg.PublicBaseURL)
		}
	}
	if cfg.ValidateSignature && cfg.AuthToken == "" {
		return errors.New("signature validation requires a Twilio auth token (set TWILIO_AUTH_TOKEN or twilio.validate_signature = false)")
	}
	if cfg.ReplyMode == config.ReplyModeREST && cfg.Sender == nil && (cfg.AccountSID == "" || cfg.AuthToken == "") {
		return errors.New("reply mode rest requires a Twilio account SID and auth token")
	}
	if cfg.Chat == nil {
		return errors.New("no reply service configured")
	}
	return nil
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	applyDefaults(&cfg)
	if cfg.Sender == nil && cfg.AccountSID != "" && cfg.AuthToken != "" {
		cfg.Sender = twilio.NewClient(cfg.AccountSID, cfg.AuthToken)
	}
	s := &Server{
		cfg:           cfg,
		validator:     twilio.NewRequestValidator(cfg.AuthToken),
		logger:        cfg.Logger,
		deliverySlots: make(chan struct{}, cfg.RESTWorkers),
		started:       time.Now(),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(s.requestIDMiddleware)
	r.Use(s.recovererMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/health", s.handleHealth)

	// Twilio posts to the bare root in some console setups.
	r.Post("/sms", s.handleSMS)
	r.Post("/", s.handleSMS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/messages", s.handleMessages)
		r.Get("/stats", s.handleStats)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusNotFound, ErrCodeNotFound, "not found", requestIDFromContext(r.Context()))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed", requestIDFromContext(r.Context()))
	})
	return r
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails. Pending REST deliveries are waited for on shutdown.
func (s *Server) Start(ctx context.Context) error {
	if err := ValidateConfig(s.cfg); err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute, // completions can be slow
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("starting server",
		zap.String("addr", addr),
		zap.String("reply_mode", s.cfg.ReplyMode),
		zap.Bool("signature_validation", s.cfg.ValidateSignature),
		zap.Bool("api", s.apiEnabled()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := s.server.Shutdown(shutdownCtx)
		s.waitDeliveries(shutdownCtx)
		return err
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
}

func (s *Server) waitDeliveries(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.deliveries.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown timed out with REST deliveries pending")
	}
}

// apiEnabled reports whether /api/v1 is served. Without a key it is only
// reachable on a loopback bind.
func (s *Server) apiEnabled() bool {
	return s.cfg.APIKey != "" || isLoopbackHost(s.cfg.Host)
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.cfg.Port
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(host)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	if strings.HasPrefix(h, "[") && strings.HasSuffix(h, "]") {
		h = strings.TrimPrefix(strings.TrimSuffix(h, "]"), "[")
	}
	if strings.Contains(h, ":") {
		if hostOnly, _, err := net.SplitHostPort(h); err == nil {
			h = hostOnly
		}
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
