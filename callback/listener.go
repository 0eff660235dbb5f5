// Package callback manages the transient local HTTP server that receives
// OAuth2 redirect callbacks. At most one listener is active per process;
// starting a second while one is running hands back the existing redirect
// URL and state instead of binding another port.
package callback

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const completionPage = `<!DOCTYPE html>
<html>
<head><title>Authorization Complete</title></head>
<body>
<h2>Authorization complete</h2>
<p>You can close this window and return to the Stream Deck form.</p>
</body>
</html>`

// Result is a received authorization callback.
type Result struct {
	Code  string
	State string
}

// Listener is the single-instance transient callback server.
type Listener struct {
	log    zerolog.Logger
	notify func(Result)

	mu          sync.Mutex
	srv         *http.Server
	redirectURL string
	state       string
	results     chan Result
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the listener's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Listener) {
		l.log = logger
	}
}

// New creates an inactive listener.
func New(options ...Option) *Listener {
	l := &Listener{log: zerolog.Nop()}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// OnResult registers a function invoked for every valid callback, in
// addition to the channel returned by Start. The bridge uses this to forward
// {code, state} to its consumer surfaces.
func (l *Listener) OnResult(notify func(Result)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = notify
}

// NewState returns an unguessable state nonce: 16 random bytes, hex encoded.
func NewState() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Start binds the listener to an ephemeral local port and returns the
// redirect URL, the active state and a channel delivering the accepted
// callback. If expectedState is empty a fresh state is generated. Start is
// idempotent: while a listener is active it returns the existing triple
// rather than binding a second port.
func (l *Listener) Start(expectedState string) (string, string, <-chan Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.srv != nil {
		return l.redirectURL, l.state, l.results, nil
	}

	if expectedState == "" {
		expectedState = NewState()
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", "", nil, fmt.Errorf("[Listener.Start] bind callback port: %w", err)
	}

	port := ln.Addr().(*net.TCPAddr).Port

	router := mux.NewRouter()
	router.HandleFunc("/callback", l.handleCallback)
	router.PathPrefix("/").HandlerFunc(l.handleProbe)

	l.srv = &http.Server{Handler: router}
	l.redirectURL = fmt.Sprintf("http://localhost:%d/callback", port)
	l.state = expectedState
	l.results = make(chan Result, 1)

	go l.srv.Serve(ln)

	l.log.Debug().Str("redirectUrl", l.redirectURL).Msg("callback listener started")
	return l.redirectURL, l.state, l.results, nil
}

// handleCallback processes the OAuth redirect. A request without a code is a
// health probe and leaves the listener running. A state mismatch is rejected
// with 400 and is not forwarded; the listener stays up for a fresh attempt.
// Exactly one valid callback is processed per Start.
func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")
	state := r.FormValue("state")

	if code == "" {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
		return
	}

	l.mu.Lock()
	if l.srv == nil {
		l.mu.Unlock()
		http.Error(w, "listener stopped", http.StatusGone)
		return
	}
	if l.state != "" && state != l.state {
		l.mu.Unlock()
		l.log.Warn().Msg("callback rejected: state mismatch")
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}

	res := Result{Code: code, State: state}
	select {
	case l.results <- res:
	default:
	}
	notify := l.notify
	l.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, completionPage)

	if notify != nil {
		notify(res)
	}

	// One-shot: tear down off the handler goroutine so the response flushes.
	go l.Stop()
}

func (l *Listener) handleProbe(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Stop closes the listener if it is running. Idempotent.
func (l *Listener) Stop() {
	l.mu.Lock()
	srv := l.srv
	results := l.results
	l.srv = nil
	l.redirectURL = ""
	l.state = ""
	l.results = nil
	l.mu.Unlock()

	if srv != nil {
		srv.Close()
	}
	if results != nil {
		close(results)
	}
}

// Active reports whether a listener is currently bound.
func (l *Listener) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.srv != nil
}
