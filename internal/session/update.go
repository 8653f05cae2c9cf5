package session

import (
	"errors"

	"github.com/ayusman/mudra/internal/filter"
)

var (
	// ErrCapture wraps fatal frame source failures.
	ErrCapture = errors.New("capture failed")

	// ErrDetect wraps fatal detector failures.
	ErrDetect = errors.New("detection failed")

	// ErrConsumerClosed is returned by a Publisher or Prober whose client has
	// gone away. The loop treats it as a normal end of session.
	ErrConsumerClosed = errors.New("consumer closed")
)

// Update is the per-frame message published to a client.
type Update struct {
	Detected bool    `json:"detected"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Shooting bool    `json:"shooting"`
	Image    string  `json:"image"`
}

// NoDetection returns the update sent when no hand is visible.
func NoDetection() Update {
	return Update{X: filter.CenterX, Y: filter.CenterY}
}
