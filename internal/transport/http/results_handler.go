package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"quiz-result-service/internal/app"
	"quiz-result-service/internal/domain"
)

type ResultsHandler struct {
	service *app.SubmissionService
	log     logrus.FieldLogger
}

func NewResultsHandler(service *app.SubmissionService, log logrus.FieldLogger) *ResultsHandler {
	return &ResultsHandler{service: service, log: log}
}

type saveResultResponse struct {
	Message     string                    `json:"message"`
	QuizHistory []domain.QuizHistoryEntry `json:"quizHistory"`
}

type historyResponse struct {
	QuizHistory []domain.QuizHistoryEntry `json:"quizHistory"`
}

// Routes registers the quiz result endpoints behind the bearer gate.
func (h *ResultsHandler) Routes(mux *http.ServeMux, auth *BearerAuth) {
	mux.HandleFunc("POST /api/quiz/results", auth.Wrap(h.SaveResult))
	mux.HandleFunc("GET /api/quiz/history", auth.Wrap(h.History))
	mux.HandleFunc("GET /api/testcodes/{code}/leaderboard", auth.Admin(h.Leaderboard))
}

// SaveResult records a finished quiz for the authenticated user.
func (h *ResultsHandler) SaveResult(w http.ResponseWriter, r *http.Request) {
	var attempt domain.Attempt
	if !decodeBody(w, r, &attempt) {
		return
	}

	userID := userIDFrom(r.Context())
	result, err := h.service.Submit(r.Context(), userID, attempt)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidAttempt):
		writeError(w, http.StatusBadRequest, "Subject, score, and totalQuestions are required")
		return
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
		return
	default:
		h.log.WithError(err).WithField("userId", userID).Error("save quiz result failed")
		writeError(w, http.StatusInternalServerError, "Server error while saving quiz result")
		return
	}

	writeJSON(w, http.StatusOK, saveResultResponse{
		Message:     "Quiz result saved successfully",
		QuizHistory: result.History,
	})
}

func (h *ResultsHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.History(r.Context(), userIDFrom(r.Context()))
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
		return
	default:
		h.log.WithError(err).Error("load quiz history failed")
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{QuizHistory: history})
}

func (h *ResultsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.PathValue("code"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "test code is required")
		return
	}
	lb, err := h.service.Leaderboard(r.Context(), code)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTestCodeNotFound):
		writeError(w, http.StatusNotFound, "Test code not found")
		return
	default:
		h.log.WithError(err).WithField("testCode", code).Error("load leaderboard failed")
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, lb)
}
