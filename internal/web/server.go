// Package web serves the garage door control page, its JSON status and a
// websocket status feed.
package web

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/status"
	"golang.org/x/crypto/bcrypt"
)

// Commander accepts a command for later execution and returns at once.
// door.Slot satisfies it.
type Commander interface {
	Offer(cmd logic.Command) logic.Command
}

// Options tune the server. The zero value serves without authentication
// in the local time zone.
type Options struct {
	// Users maps user names to bcrypt password hashes. Empty disables
	// authentication.
	Users map[string]string

	// Location is used for the time and date on the page.
	Location *time.Location
}

// Server serves the control page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	cmds       Commander
	opts       Options
	upgrader   websocket.Upgrader
}

// New creates a Server that reads state from tracker and hands commands
// to cmds.
func New(addr string, tracker *status.Tracker, cmds Commander, opts Options) *Server {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	s := &Server{tracker: tracker, cmds: cmds, opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.authenticate(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, including authentication.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	if len(s.opts.Users) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, pwd, ok := r.BasicAuth()
		hash, known := s.opts.Users[name]
		if !ok || !known || bcrypt.CompareHashAndPassword([]byte(hash), []byte(pwd)) != nil {
			log.Printf("web: unauthorized request from %s", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Basic realm="Garage"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Only a GET with an exact command literal presses a button. HEAD
	// (link previews, prefetch) and anything else is a page refresh.
	if cmd := commandFor(r); cmd != logic.CommandNone {
		if prev := s.cmds.Offer(cmd); prev != logic.CommandNone {
			log.Printf("web: %s replaces pending %s", cmd, prev)
		} else {
			log.Printf("web: %s from %s", cmd, r.RemoteAddr)
		}
		// Redirect so reloading the page does not press the button again.
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.opts.Location); err != nil {
		log.Printf("web: render: %v", err)
	}
}

func commandFor(r *http.Request) logic.Command {
	if r.Method != http.MethodGet {
		return logic.CommandNone
	}
	return logic.ParseRequestTarget(r.RequestURI)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleWS pushes the status JSON on connect and after every change.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	changes, unsubscribe := s.tracker.Subscribe()
	defer unsubscribe()

	// The client never sends anything we act on; reading detects close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() error {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteMessage(websocket.TextMessage, status.FormatJSON(s.tracker.Snapshot()))
	}
	if err := send(); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-changes:
			if err := send(); err != nil {
				log.Printf("web: websocket write: %v", err)
				return
			}
		}
	}
}
