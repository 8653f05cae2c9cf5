package detector

import (
	"errors"
	"math"
	"testing"
)

const epsilon = 1e-9

func TestDistance2D(t *testing.T) {
	tests := []struct {
		name string
		a, b Point3D
		want float64
	}{
		{"same point", Point3D{X: 0.3, Y: 0.3}, Point3D{X: 0.3, Y: 0.3}, 0},
		{"horizontal", Point3D{X: 0, Y: 0}, Point3D{X: 0.05, Y: 0}, 0.05},
		{"3-4-5", Point3D{X: 0, Y: 0}, Point3D{X: 0.3, Y: 0.4}, 0.5},
		{"depth ignored", Point3D{X: 0, Y: 0, Z: 0}, Point3D{X: 0, Y: 0, Z: 10}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance2D(tt.a, tt.b)
			if math.Abs(got-tt.want) > epsilon {
				t.Errorf("Distance2D() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestMockDetector(t *testing.T) {
	t.Run("replays script then reports no hands", func(t *testing.T) {
		hand := PointingLandmarks(0.4, 0.3)
		mock := NewMockDetector(Hand(hand), NoHand())

		hands, err := mock.Detect(nil, 0)
		if err != nil {
			t.Fatalf("Detect() error = %v", err)
		}
		if len(hands) != 1 {
			t.Fatalf("expected 1 hand, got %d", len(hands))
		}
		if hands[0].IndexTip() != hand.IndexTip() {
			t.Errorf("index tip = %+v, want %+v", hands[0].IndexTip(), hand.IndexTip())
		}

		for i := 0; i < 3; i++ {
			hands, err = mock.Detect(nil, int64(33*(i+1)))
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if len(hands) != 0 {
				t.Errorf("call %d: expected no hands, got %d", i+2, len(hands))
			}
		}

		if mock.Calls() != 4 {
			t.Errorf("Calls() = %d, want 4", mock.Calls())
		}
	})

	t.Run("scripted error", func(t *testing.T) {
		mock := NewMockDetector(Step{Err: ErrTransient})

		_, err := mock.Detect(nil, 0)
		if !errors.Is(err, ErrTransient) {
			t.Errorf("expected ErrTransient, got %v", err)
		}
	})

	t.Run("records timestamps", func(t *testing.T) {
		mock := NewMockDetector()
		mock.Detect(nil, 0)
		mock.Detect(nil, 33)
		mock.Detect(nil, 67)

		got := mock.Timestamps()
		want := []int64{0, 33, 67}
		if len(got) != len(want) {
			t.Fatalf("Timestamps() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Timestamps()[%d] = %d, want %d", i, got[i], want[i])
			}
		}
	})

	t.Run("counts closes", func(t *testing.T) {
		closeErr := errors.New("boom")
		mock := NewMockDetector()
		mock.SetCloseError(closeErr)

		if err := mock.Close(); !errors.Is(err, closeErr) {
			t.Errorf("Close() error = %v, want %v", err, closeErr)
		}
		if mock.Closes() != 1 {
			t.Errorf("Closes() = %d, want 1", mock.Closes())
		}
	})
}

func TestPresetLandmarks(t *testing.T) {
	t.Run("pointing hand keeps thumb away", func(t *testing.T) {
		hand := PointingLandmarks(0.5, 0.4)

		if tip := hand.IndexTip(); tip.X != 0.5 || tip.Y != 0.4 {
			t.Errorf("index tip = %+v, want (0.5, 0.4)", tip)
		}
		if d := Distance2D(hand.IndexTip(), hand.ThumbTip()); d < 0.1 {
			t.Errorf("thumb-index distance = %f, want >= 0.1", d)
		}
	})

	t.Run("pinch hand touches", func(t *testing.T) {
		hand := PinchLandmarks(0.5, 0.4)

		if d := Distance2D(hand.IndexTip(), hand.ThumbTip()); d >= 0.05 {
			t.Errorf("thumb-index distance = %f, want < 0.05", d)
		}
	})

	t.Run("all points inside frame", func(t *testing.T) {
		for _, hand := range []HandLandmarks{PointingLandmarks(0.5, 0.3), PinchLandmarks(0.5, 0.3)} {
			for i, p := range hand.Points {
				if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
					t.Errorf("landmark %d out of frame: %+v", i, p)
				}
			}
		}
	})
}

func TestJSONHandConversion(t *testing.T) {
	jh := jsonHand{
		Handedness: "Left",
		Score:      0.8,
		Points:     make([]jsonPoint, NumLandmarks+2),
	}
	jh.Points[IndexTip] = jsonPoint{X: 0.1, Y: 0.2, Z: 0.3}

	lm := jh.toHandLandmarks()

	if lm.Handedness != "Left" || lm.Score != 0.8 {
		t.Errorf("metadata not preserved: %+v", lm)
	}
	if lm.Points[IndexTip] != (Point3D{X: 0.1, Y: 0.2, Z: 0.3}) {
		t.Errorf("index tip = %+v", lm.Points[IndexTip])
	}
}

func TestNewMediaPipeDetector_MissingScript(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScriptPath = "/nonexistent/mediapipe_service.py"

	if _, err := NewMediaPipeDetector(cfg, nil); err == nil {
		t.Error("expected error for missing script")
	}
}
