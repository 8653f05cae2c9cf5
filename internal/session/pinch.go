package session

import "github.com/ayusman/mudra/internal/detector"

// DefaultPinchThreshold is the normalized thumb-to-index distance below which
// a hand counts as pinching.
const DefaultPinchThreshold = 0.05

// PinchDistance returns the image-plane distance between the thumb tip and
// the index fingertip.
func PinchDistance(hand *detector.HandLandmarks) float64 {
	return detector.Distance2D(hand.IndexTip(), hand.ThumbTip())
}

// IsPinching reports whether the tips are strictly closer than threshold.
func IsPinching(hand *detector.HandLandmarks, threshold float64) bool {
	return PinchDistance(hand) < threshold
}
