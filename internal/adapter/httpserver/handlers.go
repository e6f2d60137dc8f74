package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/config"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Interviews *usecase.InterviewService
	Reports    *usecase.ReportService
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, interviews *usecase.InterviewService, reports *usecase.ReportService, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Interviews: interviews, Reports: reports, DBCheck: dbCheck, RedisCheck: redisCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

type startRequest struct {
	UserID  string `json:"user_id" validate:"required,max=128"`
	Route   string `json:"route" validate:"required,oneof=f1 b1b2"`
	Profile struct {
		Name         string  `json:"name" validate:"required,max=256"`
		Country      string  `json:"country" validate:"required,max=128"`
		Institution  string  `json:"institution" validate:"max=256"`
		FieldOfStudy string  `json:"field_of_study" validate:"max=256"`
		DegreeLevel  string  `json:"degree_level" validate:"omitempty,oneof=undergraduate graduate doctorate"`
		GPA          float64 `json:"gpa" validate:"omitempty,gte=0,lte=4"`
	} `json:"profile"`
}

type answerRequest struct {
	Answer string `json:"answer" validate:"required,max=8000"`
}

// sessionResponse is the client view of a session: the pending question and
// progress, without internal tracking state.
type sessionResponse struct {
	SessionID       string               `json:"session_id"`
	Status          domain.SessionStatus `json:"status"`
	Route           domain.Route         `json:"route"`
	QuestionNumber  int                  `json:"question_number"`
	TotalQuestions  int                  `json:"total_questions"`
	Question        string               `json:"question,omitempty"`
	QuestionType    domain.QuestionType  `json:"question_type,omitempty"`
	StructuralScore float64              `json:"structural_score,omitempty"`
}

func (s *Server) sessionView(session domain.InterviewSession) sessionResponse {
	resp := sessionResponse{
		SessionID:      session.ID,
		Status:         session.Status,
		Route:          session.Route,
		QuestionNumber: session.CurrentQuestionNumber,
		TotalQuestions: s.totalQuestions(session.Route),
	}
	if session.Status == domain.SessionCompleted {
		resp.StructuralScore = session.StructuralScore
		return resp
	}
	if n := len(session.ConversationHistory); n > 0 {
		last := session.ConversationHistory[n-1]
		if !last.Answered() {
			resp.Question = last.Question
			resp.QuestionType = last.QuestionType
		}
	}
	return resp
}

func (s *Server) totalQuestions(route domain.Route) int {
	if route == domain.RouteB1B2 {
		return s.Cfg.B1B2TotalQuestions
	}
	return s.Cfg.F1TotalQuestions
}

func decodeJSON(r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") {
		return fmt.Errorf("%w: content-type must be application/json", domain.ErrInvalidArgument)
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if err := getValidator().Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

// StartHandler creates a session and returns the first question.
func (s *Server) StartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		profile := domain.CandidateProfile{
			Name:         req.Profile.Name,
			Country:      req.Profile.Country,
			Institution:  req.Profile.Institution,
			FieldOfStudy: req.Profile.FieldOfStudy,
			DegreeLevel:  req.Profile.DegreeLevel,
			GPA:          req.Profile.GPA,
		}
		session, err := s.Interviews.Start(r.Context(), req.UserID, domain.Route(req.Route), profile)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, s.sessionView(session))
	}
}

// AnswerHandler records an answer and returns the next question (or the
// completed state) plus per-answer feedback.
func (s *Server) AnswerHandler() http.HandlerFunc {
	type response struct {
		sessionResponse
		Score domain.AnswerScore `json:"score"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req answerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		session, score, err := s.Interviews.SubmitAnswer(r.Context(), chi.URLParam(r, "id"), req.Answer)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, response{sessionResponse: s.sessionView(session), Score: score})
	}
}

// GetSessionHandler returns the client view of a session.
func (s *Server) GetSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.Interviews.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, s.sessionView(session))
	}
}

// PauseHandler suspends an active session.
func (s *Server) PauseHandler() http.HandlerFunc {
	return s.transitionHandler(s.Interviews.Pause)
}

// ResumeHandler reactivates a paused session.
func (s *Server) ResumeHandler() http.HandlerFunc {
	return s.transitionHandler(s.Interviews.Resume)
}

// EndHandler force-completes a session.
func (s *Server) EndHandler() http.HandlerFunc {
	return s.transitionHandler(s.Interviews.End)
}

func (s *Server) transitionHandler(fn func(ctx context.Context, id string) (domain.InterviewSession, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := fn(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, s.sessionView(session))
	}
}

// ReportHandler serves the final evaluation. 404 means the worker has not
// produced it yet; clients poll.
func (s *Server) ReportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.Reports.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// ReadyzHandler reports dependency health.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "db", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		if s.RedisCheck != nil {
			if err := s.RedisCheck(ctx); err != nil {
				checks = append(checks, check{Name: "redis", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "redis", OK: true})
			}
		}
		st := http.StatusOK
		for _, c := range checks {
			if !c.OK {
				st = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
