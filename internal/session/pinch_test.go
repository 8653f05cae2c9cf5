package session

import (
	"testing"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/stretchr/testify/assert"
)

func handWithTips(index, thumb detector.Point3D) *detector.HandLandmarks {
	h := &detector.HandLandmarks{}
	h.Points[detector.IndexTip] = index
	h.Points[detector.ThumbTip] = thumb
	return h
}

func TestIsPinching(t *testing.T) {
	tests := []struct {
		name  string
		thumb detector.Point3D
		want  bool
	}{
		{"exactly at threshold", detector.Point3D{X: 0.05, Y: 0}, false},
		{"just inside", detector.Point3D{X: 0.049, Y: 0}, true},
		{"touching", detector.Point3D{X: 0, Y: 0}, true},
		{"far apart", detector.Point3D{X: 0.3, Y: 0.4}, false},
		{"depth ignored", detector.Point3D{X: 0.01, Y: 0, Z: 0.5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hand := handWithTips(detector.Point3D{}, tt.thumb)
			assert.Equal(t, tt.want, IsPinching(hand, DefaultPinchThreshold))
		})
	}
}

func TestPinchDistance(t *testing.T) {
	hand := handWithTips(detector.Point3D{X: 0.1, Y: 0.1}, detector.Point3D{X: 0.4, Y: 0.5})
	assert.InDelta(t, 0.5, PinchDistance(hand), 1e-12)
}
