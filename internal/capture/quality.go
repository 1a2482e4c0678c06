package capture

import "github.com/vigilo/proctor_backend_v1/internal/detector"

// Quality classifies how well the detected face fills the frame, driving
// positioning guidance in the exam client. Advisory only; it never gates a
// capture attempt.
type Quality string

const (
	QualityGood      Quality = "good"
	QualityTooSmall  Quality = "too_small"
	QualityTooLarge  Quality = "too_large"
	QualityOffCenter Quality = "off_center"
	QualityMultiple  Quality = "multiple"
	QualityNoFace    Quality = "no_face"
)

const (
	minFaceAreaRatio = 0.05
	maxFaceAreaRatio = 0.55
	maxCenterOffset  = 0.22
)

// ClassifyQuality evaluates detected faces against the frame dimensions.
func ClassifyQuality(faces []detector.Face, frameW, frameH int) Quality {
	if len(faces) == 0 {
		return QualityNoFace
	}
	if len(faces) > 1 {
		return QualityMultiple
	}
	if frameW <= 0 || frameH <= 0 {
		return QualityNoFace
	}
	box := faces[0].Box
	frameArea := float64(frameW) * float64(frameH)
	ratio := (box.W * box.H) / frameArea
	if ratio < minFaceAreaRatio {
		return QualityTooSmall
	}
	if ratio > maxFaceAreaRatio {
		return QualityTooLarge
	}

	cx := (box.X + box.W/2) / float64(frameW)
	cy := (box.Y + box.H/2) / float64(frameH)
	if abs(cx-0.5) > maxCenterOffset || abs(cy-0.5) > maxCenterOffset {
		return QualityOffCenter
	}
	return QualityGood
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
