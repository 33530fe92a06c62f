package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/yooprep/internal/services"
	"github.com/yoockh/yooprep/internal/utils"
)

type AnswerHandler struct {
	svc services.AnswerService
}

func NewAnswerHandler(svc services.AnswerService) *AnswerHandler {
	return &AnswerHandler{svc: svc}
}

type SubmitAnswerRequest struct {
	Content string `json:"content" binding:"required"`
	// QuestionIndex guards against answering a question the session has
	// already moved past.
	QuestionIndex *int           `json:"question_index"`
	Metadata      map[string]any `json:"metadata"`
}

func (h *AnswerHandler) Submit(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "AnswerHandler.Submit", "invalid request body", err))
		return
	}

	res, err := h.svc.Submit(c.Request.Context(), userID, c.Param("session_id"), req.Content, services.SubmitOptions{
		ExpectedIndex: req.QuestionIndex,
		Metadata:      req.Metadata,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// SubmitAudio accepts a multipart upload with the recording in "file" and an
// optional "language" field.
func (h *AnswerHandler) SubmitAudio(c *gin.Context) {
	const op = "AnswerHandler.SubmitAudio"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "file is required", err))
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "unreadable file", err))
		return
	}
	defer f.Close()

	job, err := h.svc.SubmitAudio(c.Request.Context(), userID, c.Param("session_id"), services.AudioUpload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Language:    c.PostForm("language"),
		Body:        f,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (h *AnswerHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c, "AnswerHandler.List")
	if !ok {
		return
	}

	list, err := h.svc.ListBySession(c.Request.Context(), userID, c.Param("session_id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answers": list})
}
