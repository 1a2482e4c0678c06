package capture

import (
	"testing"

	"github.com/vigilo/proctor_backend_v1/internal/detector"
)

func boxFace(x, y, w, h float64) detector.Face {
	return detector.Face{Box: detector.Box{X: x, Y: y, W: w, H: h}}
}

func TestClassifyQuality(t *testing.T) {
	const fw, fh = 640, 480
	tests := []struct {
		name  string
		faces []detector.Face
		want  Quality
	}{
		{"no-face", nil, QualityNoFace},
		{"multiple", []detector.Face{boxFace(0, 0, 100, 100), boxFace(300, 0, 100, 100)}, QualityMultiple},
		{"too-small", []detector.Face{boxFace(300, 220, 60, 60)}, QualityTooSmall},
		{"too-large", []detector.Face{boxFace(60, 20, 520, 440)}, QualityTooLarge},
		{"off-center", []detector.Face{boxFace(0, 0, 200, 200)}, QualityOffCenter},
		{"good", []detector.Face{boxFace(220, 140, 200, 200)}, QualityGood},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyQuality(tt.faces, fw, fh); got != tt.want {
				t.Errorf("quality: got %q, want %q", got, tt.want)
			}
		})
	}
}
