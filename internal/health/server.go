package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/social/provider"
	"github.com/vietddude/socialhub/internal/oauth"
	"github.com/vietddude/socialhub/internal/webhook"
)

const maxWebhookBody = 1 << 20

// Routes are the optional parts of the HTTP surface. A nil Ingestor
// disables webhooks and a nil Signer disables the OAuth routes.
type Routes struct {
	Ingestor        *webhook.Ingestor
	Signer          *oauth.StateSigner
	Registry        *provider.Registry
	RedirectBaseURL string
}

// Server provides HTTP endpoints for health monitoring, platform webhooks
// and the OAuth consent redirect.
type Server struct {
	monitor *Monitor
	routes  Routes
	server  *http.Server
	logger  *slog.Logger
}

// NewServer creates a new health server.
func NewServer(monitor *Monitor, routes Routes, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		routes:  routes,
		logger:  logger,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())

	if routes.Ingestor != nil {
		mux.HandleFunc("POST /webhooks/{platform}", s.handleWebhook)
		mux.HandleFunc("GET /webhooks/{platform}", s.handleWebhookVerify)
	}
	if routes.Signer != nil && routes.Registry != nil {
		mux.HandleFunc("GET /oauth/{platform}/authorize", s.handleAuthorize)
		mux.HandleFunc("GET /oauth/{platform}/callback", s.handleCallback)
	}

	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	status := http.StatusOK
	if report.SystemStatus == StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	platform, err := domain.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	res, err := s.routes.Ingestor.Ingest(r.Context(), platform, payload, r.Header.Get("X-Hub-Signature-256"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, webhook.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, webhook.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrUnsupportedPlatform):
		writeError(w, http.StatusNotFound, err)
	default:
		s.logger.Error("Webhook processing failed", "platform", platform.String(), "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := s.routes.Ingestor.VerifySubscription(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if !ok {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, challenge)
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	platform, err := domain.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	client, err := s.routes.Registry.Get(platform)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, errors.New("user_id is required"))
		return
	}

	state, err := s.routes.Signer.Issue(userID, platform)
	if err != nil {
		s.logger.Error("Failed to issue oauth state", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	http.Redirect(w, r, client.AuthorizationURL(s.callbackURL(platform), state), http.StatusFound)
}

// handleCallback verifies the state of a consent redirect. Exchanging the
// code for tokens is left to the account service that owns credentials.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	platform, err := domain.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("authorization denied: %s", e))
		return
	}

	claims, err := s.routes.Signer.Verify(q.Get("state"), platform)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if q.Get("code") == "" {
		writeError(w, http.StatusBadRequest, errors.New("code is required"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":  claims.UserID,
		"platform": platform.String(),
		"code":     q.Get("code"),
	})
}

func (s *Server) callbackURL(p domain.Platform) string {
	return s.routes.RedirectBaseURL + "/oauth/" + url.PathEscape(p.String()) + "/callback"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
