package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"quiz-result-service/internal/app"
	"quiz-result-service/internal/domain"
)

// TestCodesHandler lets admins issue shared test codes.
type TestCodesHandler struct {
	service *app.TestCodeService
	log     logrus.FieldLogger
}

func NewTestCodesHandler(service *app.TestCodeService, log logrus.FieldLogger) *TestCodesHandler {
	return &TestCodesHandler{service: service, log: log}
}

func (h *TestCodesHandler) Routes(mux *http.ServeMux, auth *BearerAuth) {
	mux.HandleFunc("POST /api/testcodes", auth.Admin(h.Issue))
}

func (h *TestCodesHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var tc domain.TestCode
	if !decodeBody(w, r, &tc) {
		return
	}
	if tc.CreatedBy == "" {
		tc.CreatedBy = userIDFrom(r.Context())
	}

	issued, err := h.service.Issue(r.Context(), tc)
	var verr *domain.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "invalid test code: "+strings.Join(verr.Fields, ", "))
		return
	default:
		h.log.WithError(err).WithField("testCode", tc.Code).Error("issue test code failed")
		writeError(w, http.StatusInternalServerError, "Server error while creating test code")
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}
