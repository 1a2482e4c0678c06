package controllers

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vigilo/proctor_backend_v1/internal/camera"
	"github.com/vigilo/proctor_backend_v1/internal/models"
	"github.com/vigilo/proctor_backend_v1/internal/proctor"
)

const maxFrameBytes = 4 << 20

// SessionController exposes the exam client's session lifecycle. Every
// endpoint resolves the session from the authenticated student; session ids
// are never taken from the request body.
type SessionController struct {
	Orc *proctor.Orchestrator
	Log *zap.Logger
}

type startSessionRequest struct {
	ExamRef         string `json:"exam_ref" binding:"required"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1"`
}

func (sc *SessionController) Start(c *gin.Context) {
	user := currentUser(c)

	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := sc.Orc.StartSession(c.Request.Context(), user.UserID, req.ExamRef,
		time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		if errors.Is(err, proctor.ErrSessionExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "session already active"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, snapshotBody(snap))
}

// Frame ingests one camera frame. Raw JPEG body; width and height ride in
// query params so the client avoids a multipart round trip per frame.
func (sc *SessionController) Frame(c *gin.Context) {
	s, ok := sc.ownSession(c)
	if !ok {
		return
	}

	width, _ := strconv.Atoi(c.Query("width"))
	height, _ := strconv.Atoi(c.Query("height"))
	if width <= 0 || height <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "width and height are required"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxFrameBytes+1))
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "frame body is required"})
		return
	}
	if len(data) > maxFrameBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "frame too large"})
		return
	}
	// Clients may also send base64 with a Content-Transfer-Encoding hint.
	if c.GetHeader("Content-Transfer-Encoding") == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(string(data))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid base64 frame"})
			return
		}
		data = decoded
	}

	err = sc.Orc.PushFrame(s.ID, camera.Frame{
		JPEG:       data,
		Width:      width,
		Height:     height,
		CapturedAt: time.Now().UTC(),
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusAccepted)
}

func (sc *SessionController) Verify(c *gin.Context) {
	s, ok := sc.ownSession(c)
	if !ok {
		return
	}
	att, err := sc.Orc.VerifyIdentity(c.Request.Context(), s.ID)
	if err != nil {
		sc.verdictError(c, err)
		return
	}
	c.JSON(http.StatusOK, attemptBody(att, s.Snapshot()))
}

func (sc *SessionController) Enroll(c *gin.Context) {
	s, ok := sc.ownSession(c)
	if !ok {
		return
	}
	att, err := sc.Orc.Enroll(c.Request.Context(), s.ID)
	if err != nil {
		sc.verdictError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attemptBody(att, s.Snapshot()))
}

type signalRequest struct {
	Code string            `json:"code" binding:"required"`
	Meta map[string]string `json:"meta"`
}

func (sc *SessionController) Signal(c *gin.Context) {
	s, ok := sc.ownSession(c)
	if !ok {
		return
	}
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := sc.Orc.HandleClientSignal(c.Request.Context(), s.ID, req.Code, req.Meta); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusAccepted)
}

func (sc *SessionController) Status(c *gin.Context) {
	s, ok := sc.ownSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snapshotBody(s.Snapshot()))
}

func (sc *SessionController) Submit(c *gin.Context) {
	s, ok := sc.ownSession(c)
	if !ok {
		return
	}
	if err := sc.Orc.Submit(c.Request.Context(), s.ID, false); err != nil {
		if errors.Is(err, proctor.ErrSessionLocked) {
			c.JSON(http.StatusConflict, gin.H{"error": "session is locked; a release code is required"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "submitted"})
}

func (sc *SessionController) ownSession(c *gin.Context) (*proctor.Session, bool) {
	user := currentUser(c)
	s, err := sc.Orc.SessionForStudent(user.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return nil, false
	}
	return s, true
}

func (sc *SessionController) verdictError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, proctor.ErrEnrollmentRequired):
		c.JSON(http.StatusPreconditionRequired, gin.H{"error": "enrollment_required"})
	case errors.Is(err, proctor.ErrIdentityMismatch):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "identity_mismatch"})
	case errors.Is(err, proctor.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "operation not valid in current state"})
	case errors.Is(err, camera.ErrPermissionDenied):
		c.JSON(http.StatusConflict, gin.H{"error": "camera_permission_denied"})
	case errors.Is(err, camera.ErrNoDevice):
		c.JSON(http.StatusConflict, gin.H{"error": "camera_not_found"})
	case errors.Is(err, proctor.ErrUploadFailure):
		c.JSON(http.StatusBadGateway, gin.H{"error": "evidence upload failed"})
	default:
		sc.Log.Warn("identity operation failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	}
}

func currentUser(c *gin.Context) models.User {
	uVal, _ := c.Get("user")
	return uVal.(models.User)
}

func snapshotBody(snap proctor.Snapshot) gin.H {
	counts := make(map[string]int, len(snap.Counts))
	for t, n := range snap.Counts {
		counts[string(t)] = n
	}
	body := gin.H{
		"session_id":      snap.SessionID,
		"student_id":      snap.StudentID,
		"exam_ref":        snap.ExamRef,
		"state":           string(snap.State),
		"integrity_score": snap.IntegrityScore,
		"critical_count":  snap.CriticalCount,
		"counts":          counts,
		"alert_count":     snap.AlertCount,
		"camera_live":     snap.CameraLive,
		"quality":         string(snap.Quality),
		"started_at":      snap.StartedAt,
	}
	if !snap.Deadline.IsZero() {
		body["deadline"] = snap.Deadline
	}
	if snap.EndedAt != nil {
		body["ended_at"] = snap.EndedAt
	}
	return body
}

func attemptBody(att proctor.VerificationAttempt, snap proctor.Snapshot) gin.H {
	return gin.H{
		"mode":       att.Mode,
		"match":      att.Match,
		"distance":   att.Distance,
		"similarity": att.Similarity,
		"state":      string(snap.State),
		"at":         att.At,
	}
}
