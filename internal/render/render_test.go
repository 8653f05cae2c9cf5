package render

import (
	"encoding/base64"
	"image"
	"strings"
	"testing"

	"github.com/ayusman/mudra/internal/detector"
	"gocv.io/x/gocv"
)

func decodePreview(t *testing.T, uri string) gocv.Mat {
	t.Helper()

	if !strings.HasPrefix(uri, DataURIPrefix) {
		t.Fatalf("missing data URI prefix: %.40q", uri)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, DataURIPrefix))
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	return img
}

func TestRenderer_Render(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	r := New(DefaultConfig())

	t.Run("no hand", func(t *testing.T) {
		uri, err := r.Render(&frame, nil, false)
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}

		img := decodePreview(t, uri)
		defer img.Close()

		if img.Cols() != DefaultWidth || img.Rows() != DefaultHeight {
			t.Errorf("preview size = %dx%d, want %dx%d", img.Cols(), img.Rows(), DefaultWidth, DefaultHeight)
		}
	})

	t.Run("landmarks drawn", func(t *testing.T) {
		hand := detector.PointingLandmarks(0.5, 0.3)
		if _, err := r.Render(&frame, &hand, false); err != nil {
			t.Fatalf("Render() error = %v", err)
		}

		tip := toPixel(hand.IndexTip(), frame.Cols(), frame.Rows())
		px := frame.GetVecbAt(tip.Y, tip.X)
		// BGR
		if px[1] != 255 || px[0] != 0 || px[2] != 0 {
			t.Errorf("index tip pixel = %v, want green", px)
		}
	})
}

func TestRenderer_PinchLine(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	hand := detector.PointingLandmarks(0.5, 0.3)
	mid := image.Pt(
		(toPixel(hand.IndexTip(), 640, 480).X+toPixel(hand.ThumbTip(), 640, 480).X)/2,
		(toPixel(hand.IndexTip(), 640, 480).Y+toPixel(hand.ThumbTip(), 640, 480).Y)/2,
	)

	r := New(DefaultConfig())
	if _, err := r.Render(&frame, &hand, false); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if px := frame.GetVecbAt(mid.Y, mid.X); px[2] == 255 {
		t.Error("pinch line drawn while not pinching")
	}

	if _, err := r.Render(&frame, &hand, true); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if px := frame.GetVecbAt(mid.Y, mid.X); px[2] != 255 {
		t.Errorf("midpoint pixel = %v, want red", px)
	}
}

func TestRenderer_EmptyFrame(t *testing.T) {
	frame := gocv.NewMat()
	defer frame.Close()

	if _, err := New(DefaultConfig()).Render(&frame, nil, false); err == nil {
		t.Error("expected error for empty frame")
	}
}

func TestMirror(t *testing.T) {
	frame := gocv.NewMatWithSize(2, 4, gocv.MatTypeCV8UC1)
	defer frame.Close()
	frame.SetUCharAt(0, 0, 200)

	Mirror(&frame)

	if got := frame.GetUCharAt(0, 3); got != 200 {
		t.Errorf("mirrored pixel = %d, want 200", got)
	}
	if got := frame.GetUCharAt(0, 0); got != 0 {
		t.Errorf("original pixel = %d, want 0", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"zero width", Config{Width: 0, Height: 240, JPEGQuality: 70}, true},
		{"quality too high", Config{Width: 320, Height: 240, JPEGQuality: 101}, true},
		{"quality zero", Config{Width: 320, Height: 240, JPEGQuality: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
