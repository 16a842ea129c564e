package server

import (
	"context"
	"net/http"
	"time"

	"github.com/openadeia/teesync/internal/utils"
	"github.com/openadeia/teesync/pkg/metrics"
	"github.com/openadeia/teesync/pkg/workflow"
)

// LOCAL_USER is the host user requests run as when no accounts are
// configured.
const LOCAL_USER = "local"

type Server struct {
	Engine *workflow.Engine
	// Accounts maps host usernames to their passwords. When empty the API
	// is open and every request runs as LOCAL_USER.
	Accounts map[string]string
}

func New(engine *workflow.Engine, accounts map[string]string) *Server {
	return &Server{
		Engine:   engine,
		Accounts: accounts,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API Group
	mux.HandleFunc("GET /api/tee/status", s.basicAuth(s.handleStatus))
	mux.HandleFunc("PUT /api/tee/credentials", s.basicAuth(s.handleSetCredentials))
	mux.HandleFunc("POST /api/tee/sync", s.basicAuth(s.handleSync))
	mux.HandleFunc("POST /api/tee/import", s.basicAuth(s.handleImport))
	mux.HandleFunc("POST /api/tee/refresh/{id}", s.basicAuth(s.handleRefresh))
	mux.HandleFunc("GET /api/projects", s.basicAuth(s.handleProjects))
	mux.HandleFunc("GET /api/projects/{id}/logs", s.basicAuth(s.handleProjectLogs))

	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	utils.Log.Infof("Starting server on %s", addr)
	return srv.ListenAndServe()
}

type ctxKey struct{}

func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(ctxKey{}).(int64)
	return id
}

// basicAuth authenticates the host user. Failing it is the only way to get
// a 401 from this API.
func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := LOCAL_USER
		if len(s.Accounts) > 0 {
			user, pass, ok := r.BasicAuth()
			want, known := s.Accounts[user]
			if !ok || !known || pass != want {
				w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			name = user
		}

		id, err := s.Engine.Store.EnsureUser(r.Context(), name)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	}
}
