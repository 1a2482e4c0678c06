package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vigilo/proctor_backend_v1/internal/models"
	"github.com/vigilo/proctor_backend_v1/internal/proctor"
	"github.com/vigilo/proctor_backend_v1/internal/utils"
)

// WorkerRouter consumes decoded messages from the on-device inference worker.
type WorkerRouter interface {
	HandleWorkerMessage(ctx context.Context, sessionID string, msg proctor.WorkerMessage) error
	SessionForStudent(studentID string) (*proctor.Session, error)
}

// workerHello is the first frame a worker must send after connecting.
type workerHello struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

// WorkerHandler accepts the inference worker's websocket. The worker runs on
// the student's machine under the student's JWT; the session is resolved from
// the authenticated student, never from client input.
func WorkerHandler(router WorkerRouter, minVersion string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uVal, ok := c.Get("user")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		user := uVal.(models.User)
		if strings.ToLower(user.Role) != "student" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		sess, err := router.SessionForStudent(user.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no active session"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.SetReadLimit(32 << 10)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		var hello workerHello
		if err := conn.ReadJSON(&hello); err != nil || hello.Type != "HELLO" {
			writeWorkerClose(conn, websocket.ClosePolicyViolation, "expected HELLO")
			return
		}
		if minVersion != "" && utils.CompareVersions(hello.Version, minVersion) < 0 {
			writeWorkerClose(conn, websocket.ClosePolicyViolation, "worker version too old")
			return
		}

		log.Info("worker connected",
			zap.String("session", sess.ID),
			zap.String("worker_version", hello.Version))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			conn.SetReadDeadline(time.Now().Add(pongWait))

			var msg proctor.WorkerMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Warn("worker message decode failed",
					zap.String("session", sess.ID), zap.Error(err))
				continue
			}
			err = router.HandleWorkerMessage(c.Request.Context(), sess.ID, msg)
			if errors.Is(err, proctor.ErrSessionNotFound) {
				writeWorkerClose(conn, websocket.CloseNormalClosure, "session ended")
				return
			}
			if err != nil {
				log.Warn("worker message rejected",
					zap.String("session", sess.ID),
					zap.String("type", string(msg.Type)),
					zap.Error(err))
			}
		}
	}
}

func writeWorkerClose(conn *websocket.Conn, code int, reason string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason))
}
