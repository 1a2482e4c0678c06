package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vigilo/proctor_backend_v1/internal/models"
	"github.com/vigilo/proctor_backend_v1/internal/proctor"
)

// MonitoringController serves the proctor dashboard: live session snapshots
// plus the persisted audit trail.
type MonitoringController struct {
	DB  *gorm.DB
	Orc *proctor.Orchestrator
}

// ListLive returns in-memory snapshots of every running session, optionally
// filtered by exam or state.
func (mc *MonitoringController) ListLive(c *gin.Context) {
	examFilter := strings.TrimSpace(c.Query("exam"))
	stateFilter := strings.TrimSpace(strings.ToLower(c.Query("state")))

	snaps := mc.Orc.Snapshots()
	out := make([]gin.H, 0, len(snaps))
	for _, snap := range snaps {
		if examFilter != "" && snap.ExamRef != examFilter {
			continue
		}
		if stateFilter != "" && string(snap.State) != stateFilter {
			continue
		}
		out = append(out, snapshotBody(snap))
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": gin.H{"total": len(out)}})
}

// ListSessions pages through persisted session rows, live or finished.
func (mc *MonitoringController) ListSessions(c *gin.Context) {
	all := strings.EqualFold(c.Query("all"), "true") || c.Query("all") == "1"
	limit := 20
	page := 1
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	sortBy := strings.ToLower(c.DefaultQuery("sort_by", "updated_at"))
	sortDir := strings.ToUpper(c.DefaultQuery("sort_dir", "DESC"))
	if sortDir != "ASC" && sortDir != "DESC" {
		sortDir = "DESC"
	}
	allowedSorts := map[string]string{
		"updated_at":      "updated_at",
		"started_at":      "started_at",
		"integrity_score": "integrity_score",
		"state":           "state",
		"student_id":      "student_id",
	}
	sortCol, ok := allowedSorts[sortBy]
	if !ok {
		sortCol = "updated_at"
	}
	order := sortCol + " " + sortDir

	base := mc.DB.Model(&models.ProctoringSession{})
	if exam := strings.TrimSpace(c.Query("exam")); exam != "" {
		base = base.Where("exam_ref = ?", exam)
	}
	if state := strings.TrimSpace(strings.ToLower(c.Query("state"))); state != "" {
		base = base.Where("state = ?", state)
	}
	if student := strings.TrimSpace(c.Query("student_id")); student != "" {
		base = base.Where("student_id = ?", student)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	listQ := base.Order(order)
	if !all {
		listQ = listQ.Offset((page - 1) * limit).Limit(limit)
	}
	var rows []models.ProctoringSession
	if err := listQ.Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, sessionRowBody(row))
	}
	meta := gin.H{"total": total, "all": all}
	if !all {
		meta["limit"] = limit
		meta["page"] = page
		meta["sort_by"] = sortBy
		meta["sort_dir"] = sortDir
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": meta})
}

// GetSession returns one persisted session with its violations and
// verification attempts.
func (mc *MonitoringController) GetSession(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
		return
	}

	var row models.ProctoringSession
	if err := mc.DB.Where("session_id = ?", sessionID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var violations []models.ViolationEvent
	if err := mc.DB.Where("session_id = ?", sessionID).Order("detected_at ASC").Find(&violations).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var attempts []models.VerificationAttempt
	if err := mc.DB.Where("session_id = ?", sessionID).Order("attempt_at ASC").Find(&attempts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	violationsOut := make([]gin.H, 0, len(violations))
	for _, v := range violations {
		violationsOut = append(violationsOut, gin.H{
			"event_id":     v.EventID,
			"type":         v.Type,
			"severity":     v.Severity,
			"metadata":     v.Metadata,
			"evidence_ref": v.EvidenceRef,
			"detected_at":  v.DetectedAt,
		})
	}
	attemptsOut := make([]gin.H, 0, len(attempts))
	for _, a := range attempts {
		attemptsOut = append(attemptsOut, gin.H{
			"mode":       a.Mode,
			"match":      a.Match,
			"distance":   a.Distance,
			"similarity": a.Similarity,
			"reason":     a.Reason,
			"attempt_at": a.AttemptAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"session":    sessionRowBody(row),
		"violations": violationsOut,
		"attempts":   attemptsOut,
	})
}

func sessionRowBody(row models.ProctoringSession) gin.H {
	return gin.H{
		"session_id":        row.SessionID,
		"student_id":        row.StudentID,
		"exam_ref":          row.ExamRef,
		"state":             row.State,
		"integrity_score":   row.IntegrityScore,
		"critical_count":    row.CriticalCount,
		"counts":            row.Counts,
		"alert_count":       row.AlertCount,
		"camera_live":       row.CameraLive,
		"last_silent_check": row.LastSilentCheck,
		"started_at":        row.StartedAt,
		"deadline":          row.Deadline,
		"ended_at":          row.EndedAt,
		"updated_at":        row.UpdatedAt,
	}
}

// ForceSubmit lets a proctor end a session directly, bypassing the lock.
func (mc *MonitoringController) ForceSubmit(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
		return
	}
	if err := mc.Orc.Submit(c.Request.Context(), sessionID, true); err != nil {
		if errors.Is(err, proctor.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "submitted"})
}
