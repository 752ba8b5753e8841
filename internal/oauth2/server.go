package oauth2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const callbackPath = "/oauth/callback"

// CallbackServer receives the authorization code redirect of a login.
type CallbackServer struct {
	logger   *slog.Logger
	listener net.Listener
	server   *http.Server
	codes    chan string
	errs     chan error
}

// Listen starts serving the callback on addr, e.g. "localhost:8085".
func Listen(addr string, logger *slog.Logger) (*CallbackServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start local server: %w", err)
	}

	s := &CallbackServer{
		logger:   logger,
		listener: listener,
		codes:    make(chan string, 1),
		errs:     make(chan error, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, s.handleCallback)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 30 * time.Second}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.fail(fmt.Errorf("server error: %w", err))
		}
	}()

	logger.Debug("started local OAuth2 server", "url", s.URL())
	return s, nil
}

// URL is the redirect URL to register with the provider.
func (s *CallbackServer) URL() string {
	return "http://" + s.listener.Addr().String() + callbackPath
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		s.fail(fmt.Errorf("authorization denied: %s", e))
		http.Error(w, "Authorization denied", http.StatusBadRequest)
		return
	}
	code := q.Get("code")
	if code == "" {
		s.fail(fmt.Errorf("no code in callback"))
		http.Error(w, "No code provided", http.StatusBadRequest)
		return
	}

	select {
	case s.codes <- code:
	default:
	}
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<html><body style="font-family: sans-serif; text-align: center; padding: 50px">
<p>Authentication successful. You can close this window.</p></body></html>`)
}

func (s *CallbackServer) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// Wait blocks until the code arrives, the callback fails or ctx ends, then
// shuts the server down.
func (s *CallbackServer) Wait(ctx context.Context) (string, error) {
	defer s.shutdown()

	select {
	case code := <-s.codes:
		return code, nil
	case err := <-s.errs:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("timeout waiting for authorization: %w", ctx.Err())
	}
}

func (s *CallbackServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("failed to stop OAuth2 server", "error", err)
	}
}
