// Package httpserver exposes the subscription management API.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/stellar/go/strkey"

	"github.com/stellar-expert/operations-notifier/internal/apperrors"
	"github.com/stellar-expert/operations-notifier/internal/model"
	"github.com/stellar-expert/operations-notifier/internal/observer"
	"github.com/stellar-expert/operations-notifier/internal/signing"
	"github.com/stellar-expert/operations-notifier/pkg/log"
)

const authScheme = "Token "

// Options configures the API server.
type Options struct {
	Observer *observer.Observer
	Signer   *signing.Signer
	Logger   log.Logger

	// Authorization requires callers to identify with a public key and
	// scopes subscription visibility to the owner.
	Authorization bool
	// Version is reported by the status endpoint.
	Version string
}

// Server is the HTTP API for managing subscriptions and inspecting service
// state.
type Server struct {
	obs     *observer.Observer
	signer  *signing.Signer
	logger  log.Logger
	auth    bool
	version string

	srv *http.Server
	lis net.Listener
}

// New builds the API server and registers its routes.
func New(opts Options) *Server {
	mux := http.NewServeMux()
	s := &Server{
		obs:     opts.Observer,
		signer:  opts.Signer,
		logger:  opts.Logger.WithComponent("api"),
		auth:    opts.Authorization,
		version: opts.Version,
		srv:     &http.Server{Handler: cors(mux)},
	}
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/subscription", s.handleSubscribe)
	mux.HandleFunc("GET /api/subscription/{id}", s.handleGetSubscription)
	mux.HandleFunc("DELETE /api/subscription/{id}", s.handleUnsubscribe)
	mux.HandleFunc("GET /api/subscriptions", s.handleListSubscriptions)
	return s
}

// Handler returns the root handler, used by tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves the API until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("api server listening", log.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases the listener.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// identify resolves the caller's identity. With authorization disabled every
// caller is anonymous; with it enabled the Authorization header must carry a
// valid ed25519 public key.
func (s *Server) identify(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !s.auth {
		return "", true
	}
	auth := r.Header.Get("Authorization")
	auth = strings.TrimPrefix(auth, authScheme)
	if auth == "" {
		writeErrorMessage(w, http.StatusUnauthorized, "access token is required")
		return "", false
	}
	if !strkey.IsValidEd25519PublicKey(auth) {
		writeErrorMessage(w, http.StatusUnauthorized, "invalid access token format")
		return "", false
	}
	return auth, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":       s.version,
		"uptime":        s.obs.Uptime().Round(time.Second).String(),
		"publicKey":     s.signer.PublicKey(),
		"subscriptions": s.obs.SubscriptionCount(),
	})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.identify(w, r)
	if !ok {
		return
	}
	var params model.SubscriptionParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "malformed request body")
		return
	}
	sub, err := s.obs.Subscribe(r.Context(), &params, owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.identify(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	sub, err := s.obs.GetSubscription(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.auth && sub.Pubkey != owner {
		s.writeError(w, apperrors.NotFound("subscription "+id))
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.identify(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if s.auth {
		sub, err := s.obs.GetSubscription(r.Context(), id)
		if err != nil || sub.Pubkey != owner {
			s.writeError(w, apperrors.NotFound("subscription "+id))
			return
		}
	}
	if err := s.obs.Unsubscribe(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.identify(w, r)
	if !ok {
		return
	}
	subs := s.obs.GetActiveSubscriptions()
	if s.auth {
		owned := make([]*model.Subscription, 0, len(subs))
		for _, sub := range subs {
			if sub.Pubkey == owner {
				owned = append(owned, sub)
			}
		}
		subs = owned
	}
	if subs == nil {
		subs = []*model.Subscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps error kinds onto response codes. Anything unclassified
// collapses into an opaque 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *apperrors.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": verr.Message,
			"param": verr.Param,
		})
	case errors.Is(err, apperrors.ErrValidation):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperrors.ErrCapacity):
		writeErrorMessage(w, http.StatusForbidden, err.Error())
	default:
		s.logger.Error("request failed", log.Err(err))
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}
