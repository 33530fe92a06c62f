package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/yooprep/internal/models"
	"github.com/yoockh/yooprep/internal/services"
	"github.com/yoockh/yooprep/internal/utils"
)

type SessionHandler struct {
	svc       services.SessionService
	questions services.QuestionService
}

// NewSessionHandler builds the session endpoints. questions may be nil, in
// which case Get returns the session without expanded questions.
func NewSessionHandler(svc services.SessionService, questions services.QuestionService) *SessionHandler {
	return &SessionHandler{svc: svc, questions: questions}
}

type CreateSessionRequest struct {
	JobID       string   `json:"job_id" binding:"required"`
	QuestionIDs []string `json:"question_ids"`
}

type NavigateRequest struct {
	QuestionIndex *int `json:"question_index" binding:"required"`
}

type UpdateStatusRequest struct {
	Status models.SessionStatus `json:"status" binding:"required"`
}

type UpdateProgressRequest struct {
	AnsweredQuestions    *int `json:"answered_questions" binding:"required"`
	CurrentQuestionIndex *int `json:"current_question_index"`
}

type SessionListResponse struct {
	Sessions []models.SessionView `json:"sessions"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Create", "invalid request body", err))
		return
	}

	sess, err := h.svc.Create(c.Request.Context(), userID, req.JobID, req.QuestionIDs)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.NewSessionView(sess))
}

func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c, "SessionHandler.List")
	if !ok {
		return
	}

	list, err := h.svc.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]models.SessionView, 0, len(list))
	for i := range list {
		out = append(out, models.NewSessionView(&list[i]))
	}
	c.JSON(http.StatusOK, SessionListResponse{Sessions: out})
}

func (h *SessionHandler) Stats(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	st, err := h.svc.Stats(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *SessionHandler) Active(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sess, err := h.svc.FindActiveByJobID(c.Request.Context(), c.Query("job_id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewSessionView(sess))
}

// Get returns the session with its question ids expanded from the question
// bank.
func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sess, err := h.svc.FindByID(c.Request.Context(), c.Param("session_id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	view := models.NewSessionView(sess)
	if h.questions != nil {
		qs, err := h.questions.Resolve(c.Request.Context(), sess.QuestionIDs)
		if err != nil {
			writeError(c, err)
			return
		}
		view.Questions = qs
	}
	c.JSON(http.StatusOK, view)
}

func (h *SessionHandler) Next(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sess, err := h.svc.MoveToNextQuestion(c.Request.Context(), c.Param("session_id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewSessionView(sess))
}

func (h *SessionHandler) Navigate(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Navigate", "invalid request body", err))
		return
	}

	sess, err := h.svc.NavigateToQuestion(c.Request.Context(), c.Param("session_id"), userID, *req.QuestionIndex)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewSessionView(sess))
}

func (h *SessionHandler) UpdateStatus(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.UpdateStatus", "invalid request body", err))
		return
	}

	sess, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("session_id"), userID, req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewSessionView(sess))
}

func (h *SessionHandler) UpdateProgress(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req UpdateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.UpdateProgress", "invalid request body", err))
		return
	}

	sess, err := h.svc.UpdateProgress(c.Request.Context(), c.Param("session_id"), userID, *req.AnsweredQuestions, req.CurrentQuestionIndex)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewSessionView(sess))
}

func (h *SessionHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	deleted, err := h.svc.Delete(c.Request.Context(), c.Param("session_id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !deleted {
		writeError(c, utils.E(utils.CodeNotFound, "SessionHandler.Delete", services.MsgSessionNotFound, nil))
		return
	}
	c.Status(http.StatusNoContent)
}
