package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/openadeia/teesync/internal/utils"
	"github.com/openadeia/teesync/pkg/permit"
	"github.com/openadeia/teesync/pkg/storage"
	"github.com/openadeia/teesync/pkg/tee"
	"github.com/openadeia/teesync/pkg/workflow"
	"github.com/sirupsen/logrus"
)

const (
	SOURCE_IMPORT      = "import"
	MSG_INTERNAL_ERROR = "Εσωτερικό σφάλμα. Δοκιμάστε ξανά."
	MAX_IMPORT_BODY    = 4 << 20
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError sends err to the client as {"error": message}. Diagnostics of
// upstream failures go to the log only.
func writeError(w http.ResponseWriter, err error) {
	status := workflow.HTTPStatus(err)
	msg := err.Error()

	entry := utils.Log.WithField("status", status)
	if kind := tee.KindOf(err); kind != tee.KindUnknown {
		entry = entry.WithField("kind", kind.String())
	}
	if d := tee.DiagnosticOf(err); d != nil {
		entry = entry.WithFields(logrus.Fields{
			"step":     d.Step,
			"upstream": d.StatusCode,
			"location": d.Location,
			"title":    d.Title,
			"body":     d.BodySnippet,
		})
	}
	if errors.Unwrap(err) != nil {
		entry = entry.WithField("cause", errors.Unwrap(err).Error())
	}

	switch {
	case status >= 500 && tee.KindOf(err) == tee.KindUnknown && !errors.Is(err, workflow.ErrCredentialDecrypt):
		entry.Errorf("request failed: %v", err)
		msg = MSG_INTERNAL_ERROR
	case status >= 500:
		entry.Warn(msg)
	default:
		entry.Debug(msg)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.Engine.Status(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type CredentialsRequest struct {
	TEEUsername string `json:"tee_username"`
	TEEPassword string `json:"tee_password"`
}

func (s *Server) handleSetCredentials(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, workflow.ErrInvalidCredentials)
		return
	}
	if err := s.Engine.SetCredentials(r.Context(), userID(r), req.TEEUsername, req.TEEPassword); err != nil {
		writeError(w, err)
		return
	}
	s.handleStatus(w, r)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.Engine.Sync(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type ImportRequest struct {
	Applications []json.RawMessage `json:"applications"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MAX_IMPORT_BODY)).Decode(&req); err != nil {
		writeError(w, workflow.ErrNothingToImport)
		return
	}

	// Items go through the normalizer, so callers may send either the
	// records returned by sync or raw portal payloads.
	apps := make([]permit.Application, 0, len(req.Applications))
	for _, raw := range req.Applications {
		apps = append(apps, permit.Normalize(permit.RawRecord{Source: SOURCE_IMPORT, Body: string(raw)}))
	}

	res, err := s.Engine.Import(r.Context(), userID(r), apps)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, workflow.ErrProjectNotLinked)
		return
	}
	res, err := s.Engine.Refresh(r.Context(), userID(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := storage.ListOptions{
		Stage:      permit.Stage(q.Get("stage")),
		LinkedOnly: q.Get("linked") == "true",
	}
	projects, err := s.Engine.Store.ListProjects(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	if projects == nil {
		projects = []storage.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleProjectLogs(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "bad project id", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := s.Engine.Store.ListWorkflowLogs(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if logs == nil {
		logs = []storage.WorkflowLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}
