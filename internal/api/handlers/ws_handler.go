package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yooprep/internal/events"
	"github.com/yoockh/yooprep/internal/models"
	"github.com/yoockh/yooprep/internal/services"
	"github.com/yoockh/yooprep/internal/utils"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 4 << 10
)

type WSHandler struct {
	sessions services.SessionService
	events   events.Subscriber
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler builds the realtime session channel. allowedOrigins empty
// accepts any origin.
func NewWSHandler(sessions services.SessionService, sub events.Subscriber, log *logrus.Logger, allowedOrigins ...string) *WSHandler {
	if log == nil {
		log = logrus.New()
	}
	allow := map[string]bool{}
	for _, o := range allowedOrigins {
		allow[o] = true
	}
	return &WSHandler{
		sessions: sessions,
		events:   sub,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return len(allow) == 0 || allow[r.Header.Get("Origin")]
			},
		},
	}
}

type wsClientMsg struct {
	Type          string `json:"type"` // next|navigate|pause|resume|cancel
	QuestionIndex *int   `json:"question_index"`
}

type wsErrorMsg struct {
	Type    string     `json:"type"`
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (w *wsConn) writeError(code utils.Code, msg string) {
	b, _ := json.Marshal(wsErrorMsg{Type: "error", Code: code, Message: msg})
	_ = w.writeText(b)
}

// SessionWS streams the session's events to the client and applies control
// messages. Results of control messages arrive as regular events.
func (h *WSHandler) SessionWS(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	if _, err := h.sessions.FindByID(c.Request.Context(), sessionID, userID); err != nil {
		writeError(c, err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, err := h.events.Subscribe(ctx, sessionID)
	if err != nil {
		writeError(c, utils.E(utils.CodeUnavailable, "WSHandler.SessionWS", "event stream unavailable", err))
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	log := h.log.WithFields(logrus.Fields{"session_id": sessionID, "user_id": userID})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(wsMaxMessage)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})

		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}

			var msg wsClientMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				wc.writeError(utils.CodeInvalidArgument, "invalid json")
				continue
			}
			if err := h.apply(ctx, sessionID, userID, msg); err != nil {
				var ae *utils.AppError
				if errors.As(err, &ae) && ae.Code != utils.CodeInternal {
					wc.writeError(ae.Code, ae.Message)
					continue
				}
				log.WithError(err).Error("ws control message failed")
				wc.writeError(utils.CodeInternal, "internal error")
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wc.ping(); err != nil {
				return
			}
		case payload, ok := <-sub.C():
			if !ok {
				return
			}
			if err := wc.writeText(payload); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) apply(ctx context.Context, sessionID, userID string, msg wsClientMsg) error {
	const op = "WSHandler.apply"

	var err error
	switch msg.Type {
	case "next":
		_, err = h.sessions.MoveToNextQuestion(ctx, sessionID, userID)
	case "navigate":
		if msg.QuestionIndex == nil {
			return utils.E(utils.CodeInvalidArgument, op, "question_index is required", nil)
		}
		_, err = h.sessions.NavigateToQuestion(ctx, sessionID, userID, *msg.QuestionIndex)
	case "pause":
		_, err = h.sessions.UpdateStatus(ctx, sessionID, userID, models.SessionPaused)
	case "resume":
		_, err = h.sessions.UpdateStatus(ctx, sessionID, userID, models.SessionActive)
	case "cancel":
		_, err = h.sessions.UpdateStatus(ctx, sessionID, userID, models.SessionCancelled)
	default:
		return utils.E(utils.CodeInvalidArgument, op, "unknown message type", nil)
	}
	return err
}
