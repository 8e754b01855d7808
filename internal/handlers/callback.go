// Package handlers serves the local OAuth redirect used during interactive
// authorization.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"multiupload/internal/models"
)

// CallbackPath is the route the provider redirects to.
const CallbackPath = "/callback"

// CallbackResult is what the provider sent back on the redirect.
type CallbackResult struct {
	Code  string
	Error string
}

var page = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html><head><title>{{.Title}}</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em">
<h1>{{.Title}}</h1><p>{{.Message}}</p>
</body></html>`))

// Listener accepts exactly one authorization redirect. Each authorization
// attempt gets its own Listener.
type Listener struct {
	addr   string
	state  string
	logger *slog.Logger

	result chan CallbackResult
	srv    *http.Server
	ln     net.Listener
}

// NewListener creates a listener on addr (host:port) that only accepts
// redirects carrying state.
func NewListener(addr, state string, logger *slog.Logger) *Listener {
	l := &Listener{
		addr:   addr,
		state:  state,
		logger: logger,
		result: make(chan CallbackResult, 1),
	}
	l.srv = &http.Server{
		Handler:           l.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return l
}

// Router returns the chi router serving the callback route.
func (l *Listener) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(CallbackPath, l.handleCallback)
	return r
}

// Start binds the port and serves in the background.
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return models.E(models.KindAuth, "callback listener", fmt.Errorf("failed to listen on %s: %w", l.addr, err))
	}
	l.ln = ln
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("callback listener stopped", "error", err)
		}
	}()
	l.logger.Debug("callback listener started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, useful when started on port 0.
func (l *Listener) Addr() string {
	if l.ln == nil {
		return l.addr
	}
	return l.ln.Addr().String()
}

// Wait blocks until the redirect arrives, ctx is done, or timeout elapses.
// It returns the authorization code.
func (l *Listener) Wait(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-l.result:
		if res.Error != "" {
			return "", models.E(models.KindAuth, "authorize", fmt.Errorf("authorization denied: %s", res.Error))
		}
		return res.Code, nil
	case <-timer.C:
		return "", models.E(models.KindAuthTimeout, "authorize", fmt.Errorf("no authorization callback within %s", timeout))
	case <-ctx.Done():
		return "", models.E(models.KindAuth, "authorize", ctx.Err())
	}
}

// Close shuts the server down.
func (l *Listener) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return l.srv.Shutdown(ctx)
}

func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("state") != l.state {
		l.logger.Warn("callback with mismatched state ignored", "remote", r.RemoteAddr)
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	res := CallbackResult{Code: q.Get("code"), Error: q.Get("error")}
	if res.Error == "" && res.Code == "" {
		http.Error(w, "No authorization code provided", http.StatusBadRequest)
		return
	}
	if desc := q.Get("error_description"); res.Error != "" && desc != "" {
		res.Error += ": " + desc
	}

	delivered := false
	select {
	case l.result <- res:
		delivered = true
	default:
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct{ Title, Message string }{"Authorization complete", "You can close this window and return to the terminal."}
	switch {
	case !delivered:
		data = struct{ Title, Message string }{"Already handled", "This authorization request was already completed."}
	case res.Error != "":
		w.WriteHeader(http.StatusBadRequest)
		data = struct{ Title, Message string }{"Authorization failed", res.Error}
	}
	if err := page.Execute(w, data); err != nil {
		l.logger.Error("failed to render callback page", "error", err)
	}
}
