package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/yooprep/internal/models"
	"github.com/yoockh/yooprep/internal/services"
	"github.com/yoockh/yooprep/internal/utils"
)

type QuestionHandler struct {
	svc services.QuestionService
}

func NewQuestionHandler(svc services.QuestionService) *QuestionHandler {
	return &QuestionHandler{svc: svc}
}

type GenerateQuestionsRequest struct {
	JobID       string `json:"job_id"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Description string `json:"description"`
	Limit       int    `json:"limit"`
}

func (h *QuestionHandler) Generate(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	var req GenerateQuestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "QuestionHandler.Generate", "invalid request body", err))
		return
	}

	res, err := h.svc.Generate(c.Request.Context(), services.GenerateInput{
		Job: models.JobContext{
			JobID:       req.JobID,
			Title:       req.Title,
			Company:     req.Company,
			Description: req.Description,
		},
		Limit: req.Limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *QuestionHandler) Upsert(c *gin.Context) {
	var q models.Question
	if err := c.ShouldBindJSON(&q); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "QuestionHandler.Upsert", "invalid request body", err))
		return
	}

	saved, err := h.svc.Upsert(c.Request.Context(), &q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}
