package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joescharf/itrack/internal/logging"
	"github.com/joescharf/itrack/internal/models"
	"github.com/joescharf/itrack/internal/store"
)

// LivenessMessage is the body served at GET /.
const LivenessMessage = "Issue Tracker Backend Running"

// Server provides the REST API handlers.
type Server struct {
	store  store.Store
	logger *slog.Logger
}

// NewServer creates a new API server. A nil logger falls back to slog.Default.
func NewServer(s store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: s, logger: logger}
}

// Router returns an http.Handler for the API routes. Path ids that are not
// all digits never reach a handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/", s.home)
	r.Get("/issues", s.listIssues)
	r.Post("/create-issue", s.createIssue)
	r.Put("/update-issue/{id:[0-9]+}", s.updateIssue)
	r.Delete("/delete-issue/{id:[0-9]+}", s.deleteIssue)
	r.Get("/reports", s.reports)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeStoreError logs err with the request's logger and answers with an
// opaque 500 naming only the failed operation.
func writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	logging.FromContext(r.Context()).Error("store operation failed",
		"op", op,
		"error", err,
		"invalid_date", errors.Is(err, store.ErrInvalidDate),
	)
	writeError(w, http.StatusInternalServerError, "failed to "+op)
}

// decodeJSON reads a JSON object body into v. An empty body is an error.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

// issueID parses the {id} path segment. The route pattern guarantees
// digits, so only overflow can fail here.
func issueID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, LivenessMessage)
}

// --- Issues ---

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.IssueListFilter{
		Search:   q.Get("search"),
		Status:   q.Get("status"),
		Category: q.Get("category"),
		FromDate: q.Get("from_date"),
		ToDate:   q.Get("to_date"),
	}
	issues, err := s.store.ListIssues(r.Context(), filter)
	if err != nil {
		writeStoreError(w, r, "list issues", err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

// createIssueRequest is the accepted body of POST /create-issue. Every
// field is optional and absent ones are stored as NULL.
type createIssueRequest struct {
	Subject     *string `json:"subject"`
	Category    *string `json:"category"`
	Status      *string `json:"status"`
	Severity    *string `json:"severity"`
	Reporter    *string `json:"reporter"`
	Assignee    *string `json:"assignee"`
	Description *string `json:"description"`
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	var req createIssueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	issue := &models.Issue{
		Subject:     req.Subject,
		Category:    req.Category,
		Status:      req.Status,
		Severity:    req.Severity,
		Reporter:    req.Reporter,
		Assignee:    req.Assignee,
		Description: req.Description,
	}
	if err := s.store.CreateIssue(r.Context(), issue); err != nil {
		writeStoreError(w, r, "create issue", err)
		return
	}

	logging.FromContext(r.Context()).Info("issue created", "issue_id", issue.ID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Issue created successfully",
		"id":      issue.ID,
	})
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := issueID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	var update models.IssueUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	n, err := s.store.UpdateIssue(r.Context(), id, &update)
	if err != nil {
		writeStoreError(w, r, "update issue", err)
		return
	}

	logging.FromContext(r.Context()).Info("issue updated", "issue_id", id, "rows", n)
	writeMessage(w, http.StatusOK, "Issue updated successfully")
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := issueID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	n, err := s.store.DeleteIssue(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, "delete issue", err)
		return
	}

	logging.FromContext(r.Context()).Info("issue deleted", "issue_id", id, "rows", n)
	writeMessage(w, http.StatusOK, "Issue deleted")
}

// --- Reports ---

func (s *Server) reports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.Reports(r.Context())
	if err != nil {
		writeStoreError(w, r, "load reports", err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}
