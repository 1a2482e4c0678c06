package models

import (
	"encoding/json"
	"time"
)

// EnrollmentRecord stores one student's biometric enrollment: the face
// embedding as a JSON column plus the reference image. Replaced wholesale
// on re-enrollment; no history is kept.
type EnrollmentRecord struct {
	ID         uint            `gorm:"primaryKey"`
	StudentID  string          `gorm:"uniqueIndex"`
	Embedding  json.RawMessage `gorm:"type:jsonb" json:"-"`
	ImagePath  string
	EnrolledAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Vector decodes the stored embedding.
func (e *EnrollmentRecord) Vector() ([]float64, error) {
	var v []float64
	if err := json.Unmarshal(e.Embedding, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// SetVector encodes the embedding for storage.
func (e *EnrollmentRecord) SetVector(v []float64) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e.Embedding = data
	return nil
}
