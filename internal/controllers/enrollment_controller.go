package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vigilo/proctor_backend_v1/internal/models"
)

// EnrollmentController gives proctors and admins visibility into biometric
// enrollments. The raw embedding never leaves the server; capture happens
// through the session endpoints.
type EnrollmentController struct {
	DB *gorm.DB
}

func (ec *EnrollmentController) Get(c *gin.Context) {
	studentID := strings.TrimSpace(c.Param("student_id"))
	if studentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student_id"})
		return
	}
	var rec models.EnrollmentRecord
	if err := ec.DB.Where("student_id = ?", studentID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not enrolled"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"student_id":  rec.StudentID,
		"image_path":  rec.ImagePath,
		"enrolled_at": rec.EnrolledAt,
		"updated_at":  rec.UpdatedAt,
	})
}

// Delete removes a student's enrollment so their next session takes the
// enrollment branch again.
func (ec *EnrollmentController) Delete(c *gin.Context) {
	studentID := strings.TrimSpace(c.Param("student_id"))
	if studentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student_id"})
		return
	}
	res := ec.DB.Where("student_id = ?", studentID).Delete(&models.EnrollmentRecord{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not enrolled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "enrollment removed"})
}

// Mine reports the authenticated student's own enrollment status.
func (ec *EnrollmentController) Mine(c *gin.Context) {
	user := currentUser(c)
	var rec models.EnrollmentRecord
	if err := ec.DB.Where("student_id = ?", user.UserID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, gin.H{"enrolled": false})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"enrolled":    true,
		"enrolled_at": rec.EnrolledAt,
	})
}
