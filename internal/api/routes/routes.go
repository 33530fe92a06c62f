package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/yooprep/internal/api/handlers"
	"github.com/yoockh/yooprep/internal/api/middleware"
)

type Deps struct {
	Session  *handlers.SessionHandler
	Answer   *handlers.AnswerHandler
	Question *handlers.QuestionHandler
	WS       *handlers.WSHandler

	Auth gin.HandlerFunc
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(d.Auth)

	sessions := auth.Group("/sessions")
	sessions.POST("", d.Session.Create)
	sessions.GET("", d.Session.List)
	sessions.GET("/stats", d.Session.Stats)
	sessions.GET("/active", d.Session.Active)
	sessions.GET("/:session_id", d.Session.Get)
	sessions.POST("/:session_id/next", d.Session.Next)
	sessions.POST("/:session_id/navigate", d.Session.Navigate)
	sessions.PATCH("/:session_id/status", d.Session.UpdateStatus)
	sessions.PATCH("/:session_id/progress", d.Session.UpdateProgress)
	sessions.DELETE("/:session_id", d.Session.Delete)

	sessions.POST("/:session_id/answers", d.Answer.Submit)
	sessions.POST("/:session_id/answers/audio", d.Answer.SubmitAudio)
	sessions.GET("/:session_id/answers", d.Answer.List)

	auth.POST("/questions/generate", d.Question.Generate)

	admin := auth.Group("/admin", middleware.RequireAdmin())
	admin.PUT("/questions", d.Question.Upsert)

	// WebSocket
	auth.GET("/ws/sessions/:session_id", d.WS.SessionWS)
}
