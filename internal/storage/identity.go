package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vigilo/proctor_backend_v1/internal/matcher"
	"github.com/vigilo/proctor_backend_v1/internal/models"
	"github.com/vigilo/proctor_backend_v1/internal/proctor"
)

// IdentityStore persists enrollments and verification attempts via GORM.
type IdentityStore struct {
	DB *gorm.DB
}

// Enrollment loads a student's stored embedding. A missing record or one
// whose vector is not the expected dimensionality reports
// ErrEnrollmentRequired so the caller takes the explicit enrollment branch.
func (s *IdentityStore) Enrollment(ctx context.Context, studentID string) ([]float64, string, error) {
	var rec models.EnrollmentRecord
	err := s.DB.WithContext(ctx).Where("student_id = ?", studentID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", proctor.ErrEnrollmentRequired
		}
		return nil, "", err
	}
	vec, err := rec.Vector()
	if err != nil || len(vec) != matcher.EmbeddingDim {
		// Malformed biometric data is treated as absent, never matched.
		return nil, "", proctor.ErrEnrollmentRequired
	}
	return vec, rec.ImagePath, nil
}

// SaveEnrollment replaces the student's enrollment wholesale.
func (s *IdentityStore) SaveEnrollment(ctx context.Context, studentID string, embedding []float64, imageRef string, at time.Time) error {
	rec := models.EnrollmentRecord{
		StudentID:  studentID,
		ImagePath:  imageRef,
		EnrolledAt: at,
	}
	if err := rec.SetVector(embedding); err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}},
		UpdateAll: true,
	}).Create(&rec).Error
}

// LogAttempt appends one verification attempt record.
func (s *IdentityStore) LogAttempt(ctx context.Context, a proctor.VerificationAttempt) error {
	rec := models.VerificationAttempt{
		SessionID:  a.SessionID,
		StudentID:  a.StudentID,
		Mode:       a.Mode,
		Distance:   a.Distance,
		Similarity: a.Similarity,
		Match:      a.Match,
		Reason:     a.Reason,
		AttemptAt:  a.At,
	}
	return s.DB.WithContext(ctx).Create(&rec).Error
}
