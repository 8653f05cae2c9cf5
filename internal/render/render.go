// Package render turns an annotated camera frame into the preview image sent
// to clients.
package render

import (
	"encoding/base64"
	"fmt"
	"image"
	"image/color"

	"github.com/ayusman/mudra/internal/detector"
	"gocv.io/x/gocv"
)

// DataURIPrefix precedes the base64 JPEG payload.
const DataURIPrefix = "data:image/jpeg;base64,"

// Default preview settings
const (
	DefaultWidth       = 320
	DefaultHeight      = 240
	DefaultJPEGQuality = 70
)

var (
	landmarkColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	pinchColor    = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	boneColor     = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

const (
	landmarkRadius = 5
	pinchThickness = 3
	boneThickness  = 1
)

// Config holds preview encoding options.
type Config struct {
	Width       int
	Height      int
	JPEGQuality int

	// DrawSkeleton connects landmarks with lines in addition to the dots.
	DrawSkeleton bool
}

// DefaultConfig returns a 320x240 preview at JPEG quality 70.
func DefaultConfig() Config {
	return Config{
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		JPEGQuality: DefaultJPEGQuality,
	}
}

// Validate checks the preview size and quality.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("preview size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be in [1, 100], got %d", c.JPEGQuality)
	}
	return nil
}

// Renderer annotates frames and encodes them as JPEG data URIs.
// It is stateless and safe for concurrent use.
type Renderer struct {
	cfg Config
}

// New creates a Renderer for cfg.
func New(cfg Config) *Renderer {
	return &Renderer{cfg: cfg}
}

// Render draws hand (if any) onto frame in place, scales it down to the
// preview size and returns it as a data URI. The pinch line between thumb
// and index tips is only drawn while pinching.
func (r *Renderer) Render(frame *gocv.Mat, hand *detector.HandLandmarks, pinching bool) (string, error) {
	if frame == nil || frame.Empty() {
		return "", fmt.Errorf("render: empty frame")
	}

	if hand != nil {
		r.annotate(frame, hand, pinching)
	}

	small := gocv.NewMat()
	defer small.Close()

	if err := gocv.Resize(*frame, &small, image.Pt(r.cfg.Width, r.cfg.Height), 0, 0, gocv.InterpolationLinear); err != nil {
		return "", fmt.Errorf("resize: %w", err)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, small, []int{gocv.IMWriteJpegQuality, r.cfg.JPEGQuality})
	if err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	return DataURIPrefix + base64.StdEncoding.EncodeToString(buf.GetBytes()), nil
}

func (r *Renderer) annotate(frame *gocv.Mat, hand *detector.HandLandmarks, pinching bool) {
	w, h := frame.Cols(), frame.Rows()

	if r.cfg.DrawSkeleton {
		for _, c := range detector.Connections {
			gocv.Line(frame, toPixel(hand.Points[c[0]], w, h), toPixel(hand.Points[c[1]], w, h), boneColor, boneThickness)
		}
	}

	for _, p := range hand.Points {
		gocv.Circle(frame, toPixel(p, w, h), landmarkRadius, landmarkColor, -1)
	}

	if pinching {
		gocv.Line(frame, toPixel(hand.IndexTip(), w, h), toPixel(hand.ThumbTip(), w, h), pinchColor, pinchThickness)
	}
}

// toPixel maps a normalized landmark to frame pixel coordinates.
func toPixel(p detector.Point3D, w, h int) image.Point {
	return image.Pt(int(p.X*float64(w)), int(p.Y*float64(h)))
}

// Mirror flips frame horizontally in place so the preview behaves like a
// mirror.
func Mirror(frame *gocv.Mat) {
	gocv.Flip(*frame, frame, 1)
}
