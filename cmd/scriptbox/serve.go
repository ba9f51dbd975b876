package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/scriptbox-dev/scriptbox/dispatch"
	"github.com/scriptbox-dev/scriptbox/protocol"
	"github.com/scriptbox-dev/scriptbox/sandbox"
	"github.com/scriptbox-dev/scriptbox/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for script execution",
	Long: `Start an HTTP server that provides REST endpoints for script execution.

Endpoints:
  POST   /execute              Execute script (stateless)
  POST   /sessions             Create session, returns {"session_id":"..."}
  POST   /sessions/{id}/exec   Execute in session (context persists)
  DELETE /sessions/{id}        Close session
  GET    /health               Health check`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().Duration("session-ttl", 15*time.Minute, "Idle session expiry")
	addSessionFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

// scriptExecutor is what the handlers need from the sandbox host.
type scriptExecutor interface {
	Execute(ctx context.Context, script string, caps sandbox.Capabilities, opts ...sandbox.Option) sandbox.Result
}

type sessionManager struct {
	sessions map[string]*serverSession
	mu       sync.RWMutex
	ttl      time.Duration
	stop     chan struct{}
}

type serverSession struct {
	store    *session.Store
	lastUsed time.Time
}

func newSessionManager(ttl time.Duration) *sessionManager {
	sm := &sessionManager{
		sessions: make(map[string]*serverSession),
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go sm.sweep()
	return sm
}

func (sm *sessionManager) create() string {
	id := generateSessionID()
	sm.mu.Lock()
	sm.sessions[id] = &serverSession{
		store:    session.NewStore(),
		lastUsed: time.Now(),
	}
	sm.mu.Unlock()
	return id
}

func (sm *sessionManager) get(id string) (*session.Store, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	ss, ok := sm.sessions[id]
	if !ok {
		return nil, false
	}
	ss.lastUsed = time.Now()
	return ss.store, true
}

func (sm *sessionManager) close(id string) bool {
	sm.mu.Lock()
	_, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	return ok
}

func (sm *sessionManager) sweep() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-sm.stop:
			return
		case <-ticker.C:
			sm.mu.Lock()
			now := time.Now()
			for id, ss := range sm.sessions {
				if now.Sub(ss.lastUsed) > sm.ttl {
					delete(sm.sessions, id)
				}
			}
			sm.mu.Unlock()
		}
	}
}

func (sm *sessionManager) closeAll() {
	close(sm.stop)
	sm.mu.Lock()
	for id := range sm.sessions {
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()
}

func generateSessionID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}

type executeRequest struct {
	Script  string `json:"script"`
	Timeout string `json:"timeout,omitempty"`
}

type executeResponse struct {
	OK         bool                  `json:"ok"`
	Value      any                   `json:"value,omitempty"`
	Output     string                `json:"output,omitempty"`
	Progress   []string              `json:"progress,omitempty"`
	DurationMs int64                 `json:"duration_ms"`
	Error      *protocol.ErrorDetail `json:"error,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

func toResponse(res sandbox.Result) executeResponse {
	return executeResponse{
		OK:         res.OK,
		Value:      res.Value,
		Output:     res.Output,
		Progress:   res.Progress,
		DurationMs: res.Duration.Milliseconds(),
		Error:      res.Error,
	}
}

func newServeMux(exec scriptExecutor, table *dispatch.Table, sessions *sessionManager, defaultTimeout time.Duration) *http.ServeMux {
	execute := func(ctx context.Context, req executeRequest, store *session.Store) executeResponse {
		timeout := defaultTimeout
		if req.Timeout != "" {
			if d, err := time.ParseDuration(req.Timeout); err == nil {
				timeout = d
			}
		}

		caps := sandbox.Capabilities{Table: table, Session: store}
		return toResponse(exec.Execute(ctx, req.Script, caps, sandbox.WithTimeout(timeout)))
	}

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/execute", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Script == "" {
			http.Error(w, "script required", http.StatusBadRequest)
			return
		}

		writeJSON(w, execute(r.Context(), req, nil))
	})

	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// The body is optional; accept and ignore an empty one.
		if _, err := io.Copy(io.Discard, r.Body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		writeJSON(w, createSessionResponse{SessionID: sessions.create()})
	})

	mux.HandleFunc("/sessions/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/sessions/")
		parts := strings.SplitN(path, "/", 2)
		sessionID := parts[0]

		if sessionID == "" {
			http.Error(w, "session_id required", http.StatusBadRequest)
			return
		}

		if r.Method == http.MethodDelete {
			if sessions.close(sessionID) {
				w.WriteHeader(http.StatusNoContent)
			} else {
				http.Error(w, "session not found", http.StatusNotFound)
			}
			return
		}

		if r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "exec" {
			store, ok := sessions.get(sessionID)
			if !ok {
				http.Error(w, "session not found", http.StatusNotFound)
				return
			}

			var req executeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			if req.Script == "" {
				http.Error(w, "script required", http.StatusBadRequest)
				return
			}

			writeJSON(w, execute(r.Context(), req, store))
			return
		}

		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

func runServe(cmd *cobra.Command, args []string) {
	port, _ := cmd.Flags().GetInt("port")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	sessionTTL, _ := cmd.Flags().GetDuration("session-ttl")

	host, err := newHost(cmd, sandbox.WithPrecompile())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer host.Close()

	sessions := newSessionManager(sessionTTL)
	defer sessions.closeAll()

	mux := newServeMux(host, buildTable(cmd), sessions, timeout)

	addr := fmt.Sprintf(":%d", port)
	fmt.Fprintf(os.Stderr, "scriptbox server listening on %s\n", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
