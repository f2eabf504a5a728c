package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/soyeahso/leadreach/internal/domain"
	"github.com/soyeahso/leadreach/internal/review"
	"github.com/soyeahso/leadreach/internal/store"
)

const maxEventBytes = 1 << 20

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	mux.HandleFunc("POST /api/agent", s.rateLimit(s.requireAuth(s.handleAgent)))
	mux.HandleFunc("GET /api/status", s.rateLimit(s.requireAuth(s.handleStatus)))
	if s.store != nil {
		mux.HandleFunc("GET /api/conversations", s.rateLimit(s.requireAuth(s.handleListConversations)))
		mux.HandleFunc("GET /api/conversations/{id}", s.rateLimit(s.requireAuth(s.handleGetConversation)))
		mux.HandleFunc("DELETE /api/conversations/{id}", s.rateLimit(s.requireAuth(s.handleDeleteConversation)))
	}
	mux.HandleFunc("GET /ws", s.requireAuth(s.handleWebSocket))

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// AgentResponse is the body returned by POST /api/agent.
type AgentResponse struct {
	Message    string  `json:"message"`
	ThreadID   string  `json:"threadId"`
	ReviewLink string  `json:"reviewLink,omitempty"`
	Answer     string  `json:"answer,omitempty"`
	Domain     *string `json:"domain"`
}

// handleAgent runs a new-lead or review event through the workflow.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	ev, err := review.ParseEvent(body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.log.Info().
		Str("kind", string(ev.Kind)).
		Str("threadId", ev.ThreadID).
		Msg("inbound event")

	// A dropped client must not abort the run; the engine bounds it.
	ctx := context.WithoutCancel(r.Context())
	res, err := s.agent.Handle(ctx, ev)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := AgentResponse{ThreadID: res.ThreadID}
	if res.Domain != "" {
		d := res.Domain
		resp.Domain = &d
	}
	if res.Suspended() {
		resp.Message = "needs human review"
		resp.ReviewLink = res.ReviewLink
	} else {
		resp.Message = "completed"
		resp.Answer = res.Answer
	}
	writeJSON(w, http.StatusOK, resp)
}

// StatusResponse is the authenticated, detailed health view.
type StatusResponse struct {
	Status        string                `json:"status"`
	Version       string                `json:"version"`
	Clients       int                   `json:"clients"`
	UptimeSeconds int64                 `json:"uptimeSeconds"`
	Conversations map[domain.Status]int `json:"conversations,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.hub.Count(),
	}
	if !s.startedAt.IsZero() {
		resp.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
	}
	if s.store != nil {
		all, err := s.store.List(r.Context(), store.ListOptions{})
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp.Conversations = map[domain.Status]int{}
		for _, c := range all {
			resp.Conversations[c.Status]++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	opts := store.ListOptions{Status: domain.Status(r.URL.Query().Get("status"))}
	switch opts.Status {
	case "", domain.StatusRunning, domain.StatusSuspended, domain.StatusTerminal:
	default:
		s.writeError(w, &domain.ValidationError{Field: "status", Message: "must be running, suspended or terminal"})
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, &domain.ValidationError{Field: "limit", Message: "must be a non-negative integer"})
			return
		}
		opts.Limit = n
	}

	list, err := s.store.List(r.Context(), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": list})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := domain.ValidateThreadID(id); err != nil {
		s.writeError(w, err)
		return
	}
	conv, err := s.store.Load(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := domain.ValidateThreadID(id); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info().Str("threadId", id).Msg("conversation deleted by operator")
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var submitErr *review.SubmitError
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotSuspended):
		return http.StatusConflict
	case errors.As(err, &submitErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes it with the mapped status. Validation and
// not-found errors are reported with their own message, unwrapped.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()

	var nf *domain.NotFoundError
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		msg = ve.Error()
	case errors.As(err, &nf):
		msg = nf.Error()
	}

	ev := s.log.Warn()
	if status >= 500 {
		ev = s.log.Error()
	}
	ev.Err(err).Int("status", status).Msg("request failed")
	writeJSONError(w, status, msg)
}
