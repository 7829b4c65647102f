package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/blackwell-systems/devkeep/internal/config"
	"github.com/blackwell-systems/devkeep/internal/ops"
)

// response is the JSON envelope every API endpoint returns.
type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func sendJSON(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func sendSuccess(w http.ResponseWriter, data any) {
	sendJSON(w, http.StatusOK, response{Success: true, Data: data})
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, response{Success: false, Message: message})
}

// statusForError maps domain errors onto HTTP statuses: a busy slot is a
// conflict, a cancel or clear in the wrong state is a conflict too unless
// there is no operation at all, and validation failures are bad requests.
func statusForError(err error) int {
	var conflict *ops.ConflictError
	var tooLate *ops.TooLateError
	var validation *config.ValidationError

	switch {
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &tooLate):
		if tooLate.State == ops.StateIdle {
			return http.StatusNotFound
		}
		return http.StatusConflict
	case errors.As(err, &validation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	fresh := r.URL.Query().Get("fresh")
	force := fresh == "1" || fresh == "true"

	snap := s.opts.Cache.Status(r.Context(), force)
	sendSuccess(w, snap)
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, s.opts.Machine.Records())
}

// parseKindParam resolves the {kind} URL parameter, writing a 400 and
// returning false when it names no operation kind.
func parseKindParam(w http.ResponseWriter, r *http.Request) (ops.Kind, bool) {
	kind, err := ops.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return kind, true
}

func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKindParam(w, r)
	if !ok {
		return
	}

	rec, ok := s.opts.Machine.Current(kind)
	if !ok {
		sendError(w, http.StatusNotFound, fmt.Sprintf("no %s operation", kind))
		return
	}
	sendSuccess(w, rec)
}

func (s *Server) handleStartOperation(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKindParam(w, r)
	if !ok {
		return
	}
	if s.opts.Start == nil {
		sendError(w, http.StatusNotImplemented, "operation start not wired")
		return
	}

	var params map[string]string
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}

	rec, err := s.opts.Start(kind, params)
	if err != nil {
		sendError(w, statusForError(err), err.Error())
		return
	}
	sendJSON(w, http.StatusAccepted, response{Success: true, Data: rec})
}

func (s *Server) handleCancelOperation(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKindParam(w, r)
	if !ok {
		return
	}

	rec, err := s.opts.Machine.Cancel(kind)
	if err != nil {
		sendError(w, statusForError(err), err.Error())
		return
	}
	sendSuccess(w, rec)
}

func (s *Server) handleClearOperation(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKindParam(w, r)
	if !ok {
		return
	}

	if err := s.opts.Machine.Clear(kind); err != nil {
		sendError(w, statusForError(err), err.Error())
		return
	}
	sendSuccess(w, map[string]string{"message": fmt.Sprintf("%s cleared", kind)})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, warn := s.opts.Config.Load()
	resp := response{Success: true, Data: cfg}
	if warn != nil {
		resp.Message = warn.Error()
	}
	sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg config.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid config JSON: %v", err))
		return
	}

	if err := s.opts.Config.Save(&cfg); err != nil {
		sendError(w, statusForError(err), err.Error())
		return
	}
	sendSuccess(w, cfg)
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := s.opts.Backups.List()
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendSuccess(w, backups)
}

func (s *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	if s.opts.Start == nil {
		sendError(w, http.StatusNotImplemented, "operation start not wired")
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}

	rec, err := s.opts.Start(ops.KindBackupCreate, map[string]string{"name": body.Name})
	if err != nil {
		sendError(w, statusForError(err), err.Error())
		return
	}
	sendJSON(w, http.StatusAccepted, response{Success: true, Data: rec})
}

// isToolName reports whether name is a plausible executable name. URL input
// reaches exec, so only allow bare tool names, never paths or flags.
func isToolName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case strings.ContainsRune("._@+-", r):
		default:
			return false
		}
	}
	return true
}

func (s *Server) handleProbeTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !isToolName(name) {
		sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid tool name %q", name))
		return
	}

	// Memoized so dashboard polling cannot hammer exec; entries expire on
	// the probe TTL.
	if res, ok := s.memo.Get(name); ok {
		sendSuccess(w, res)
		return
	}

	res := s.opts.Prober.Probe(r.Context(), name, "")
	s.memo.Add(name, res)
	sendSuccess(w, res)
}

func (s *Server) handleListMetrics(w http.ResponseWriter, r *http.Request) {
	rows, err := s.opts.DB.LatestMetricSnapshots(20)
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendSuccess(w, rows)
}

func (s *Server) handleListImpacts(w http.ResponseWriter, r *http.Request) {
	rows, err := s.opts.DB.ListImpacts(20)
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendSuccess(w, rows)
}
