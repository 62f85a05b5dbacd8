package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"quizlms/internal/app/apiresp"
	"quizlms/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc attemptService
}

type attemptService interface {
	StartAttempt(ctx context.Context, quizID, studentID int64) (*AttemptView, error)
	SubmitAttempt(ctx context.Context, attemptID, viewerID int64, viewerRole string, responses []ResponseInput) (*QuizResult, error)
	GetResult(ctx context.Context, attemptID, viewerID int64, viewerRole string) (*QuizResult, error)
	GetStudentProgress(ctx context.Context, quizID, studentID int64) (*StudentProgress, error)
}

func NewHandler(svc attemptService) *Handler {
	return &Handler{svc: svc}
}

type startAttemptRequest struct {
	QuizID    int64 `json:"quiz_id"`
	StudentID int64 `json:"student_id"`
}

type submitAttemptRequest struct {
	Responses []ResponseInput `json:"responses"`
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req startAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QuizID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "quiz_id is required")
		return
	}

	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	switch user.Role {
	case auth.RoleAdmin:
		if req.StudentID <= 0 {
			apiresp.WriteError(w, r, http.StatusBadRequest, "student_id is required for admin")
			return
		}
	case auth.RoleStudent:
		if req.StudentID > 0 && req.StudentID != user.ID {
			apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		req.StudentID = user.ID
	default:
		apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
		return
	}

	view, err := h.svc.StartAttempt(r.Context(), req.QuizID, req.StudentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, view)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	attemptID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || attemptID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid attempt id")
		return
	}

	var req submitAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.SubmitAttempt(r.Context(), attemptID, user.ID, user.Role, req.Responses)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, result)
}

func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	attemptID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || attemptID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid attempt id")
		return
	}

	result, err := h.svc.GetResult(r.Context(), attemptID, user.ID, user.Role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, result)
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	quizID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || quizID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid quiz id")
		return
	}

	studentID := user.ID
	if raw := strings.TrimSpace(r.URL.Query().Get("student_id")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			apiresp.WriteError(w, r, http.StatusBadRequest, "invalid student_id")
			return
		}
		studentID = parsed
	}

	if studentID != user.ID && user.Role != auth.RoleAdmin && user.Role != auth.RoleTeacher {
		apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
		return
	}

	progress, err := h.svc.GetStudentProgress(r.Context(), quizID, studentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, progress)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrQuizNotFound), errors.Is(err, ErrAttemptNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotEnrolled), errors.Is(err, ErrNotAttemptOwner), errors.Is(err, ErrResultForbidden):
		apiresp.WriteError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrActiveAttempt), errors.Is(err, ErrMaxAttempts),
		errors.Is(err, ErrAlreadySubmitted), errors.Is(err, ErrAttemptNotFinished):
		apiresp.WriteError(w, r, http.StatusConflict, err.Error())
	case errors.As(err, &verr):
		apiresp.WriteError(w, r, http.StatusUnprocessableEntity, verr.Error())
	default:
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}
