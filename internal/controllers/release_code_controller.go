package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vigilo/proctor_backend_v1/internal/models"
	"github.com/vigilo/proctor_backend_v1/internal/proctor"
	"github.com/vigilo/proctor_backend_v1/internal/utils"
)

// ReleaseCodeController manages one-time codes that let a locked session be
// force-submitted. Proctors generate them; the exam client consumes them.
type ReleaseCodeController struct {
	DB  *gorm.DB
	Orc *proctor.Orchestrator
}

type generateReleaseCodeRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Length    int    `json:"length"` // optional; default 6
}

func (rc *ReleaseCodeController) Generate(c *gin.Context) {
	user := currentUser(c)

	var req generateReleaseCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	codestr, err := utils.GenerateCode(req.Length)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate code"})
		return
	}

	// The session must exist, live or persisted.
	if _, err := rc.Orc.Get(req.SessionID); err != nil {
		var row models.ProctoringSession
		if err := rc.DB.Where("session_id = ?", req.SessionID).First(&row).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
			return
		}
	}

	rec := models.ReleaseCode{
		IssuedBy:  user.ID,
		SessionID: req.SessionID,
		Code:      codestr,
	}
	if err := rc.DB.Create(&rec).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			c.JSON(http.StatusConflict, gin.H{"error": "code already exists, retry"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         rec.ID,
		"code":       rec.Code,
		"session_id": rec.SessionID,
		"created_at": rec.CreatedAt,
	})
}

func (rc *ReleaseCodeController) List(c *gin.Context) {
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
	sortBy := strings.ToLower(c.DefaultQuery("sort_by", "created_at"))
	sortDir := strings.ToUpper(c.DefaultQuery("sort_dir", "DESC"))
	if sortDir != "ASC" && sortDir != "DESC" {
		sortDir = "DESC"
	}
	allowedSorts := map[string]string{
		"id":         "id",
		"created_at": "created_at",
		"used_at":    "used_at",
		"code":       "code",
	}
	sortCol, ok := allowedSorts[sortBy]
	if !ok {
		sortCol = "created_at"
	}
	order := sortCol + " " + sortDir

	applyFilters := func(q *gorm.DB) (*gorm.DB, bool) {
		if sessionID := strings.TrimSpace(c.Query("session_id")); sessionID != "" {
			q = q.Where("session_id = ?", sessionID)
		}
		// used filter; default show only unused (used_at is NULL)
		used := strings.TrimSpace(strings.ToLower(c.DefaultQuery("used", "false")))
		switch used {
		case "true", "1":
			q = q.Where("used_at IS NOT NULL")
		case "false", "0":
			q = q.Where("used_at IS NULL")
		case "all":
			// no filter
		default:
			return nil, false
		}
		return q, true
	}

	base, ok := applyFilters(rc.DB.Model(&models.ReleaseCode{}))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid used filter"})
		return
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	listQ, _ := applyFilters(rc.DB.Model(&models.ReleaseCode{}))
	listQ = listQ.Order(order)
	if !all {
		listQ = listQ.Offset((page - 1) * limit).Limit(limit)
	}
	var items []models.ReleaseCode
	if err := listQ.Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(items))
	for _, e := range items {
		out = append(out, gin.H{
			"id":         e.ID,
			"session_id": e.SessionID,
			"code":       e.Code,
			"used_at":    e.UsedAt,
			"revoked_at": e.RevokedAt,
			"created_at": e.CreatedAt,
			"created_by": e.IssuedBy,
		})
	}
	meta := gin.H{"total": total, "all": all}
	if !all {
		meta["limit"] = limit
		meta["page"] = page
		meta["sort_by"] = sortCol
		meta["sort_dir"] = sortDir
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": meta})
}

func (rc *ReleaseCodeController) Revoke(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var rec models.ReleaseCode
	if err := rc.DB.First(&rec, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "release code not found"})
		return
	}
	if rec.UsedAt != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "code already used"})
		return
	}
	if rec.RevokedAt == nil {
		now := time.Now().UTC()
		rec.RevokedAt = &now
		if err := rc.DB.Save(&rec).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "revoked"})
}

type consumeRequest struct {
	Code string `json:"code" binding:"required"`
}

// Consume marks a code as used and force-submits the locked session it
// releases. Single-use; an already-used code returns 409.
func (rc *ReleaseCodeController) Consume(c *gin.Context) {
	user := currentUser(c)

	var req consumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := rc.Orc.SessionForStudent(user.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return
	}

	now := time.Now().UTC()
	err = rc.DB.Transaction(func(tx *gorm.DB) error {
		var rec models.ReleaseCode
		q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ? AND session_id = ? AND used_at IS NULL AND revoked_at IS NULL", req.Code, s.ID)
		if err := q.First(&rec).Error; err != nil {
			return err
		}
		rec.UsedAt = &now
		return tx.Save(&rec).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusConflict, gin.H{"error": "code not valid for this session or already used"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := rc.Orc.Submit(c.Request.Context(), s.ID, true); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session released and submitted"})
}
