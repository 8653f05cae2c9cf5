package filter

import (
	"reflect"
	"testing"
)

func TestWindow_Push(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		pushes   []float64
		want     []float64
		full     bool
	}{
		{"empty", 3, nil, []float64{}, false},
		{"partial", 3, []float64{1, 2}, []float64{1, 2}, false},
		{"exactly full", 3, []float64{1, 2, 3}, []float64{1, 2, 3}, true},
		{"wraps once", 3, []float64{1, 2, 3, 4}, []float64{2, 3, 4}, true},
		{"wraps twice", 3, []float64{1, 2, 3, 4, 5, 6, 7}, []float64{5, 6, 7}, true},
		{"capacity one", 1, []float64{1, 2}, []float64{2}, true},
		{"zero capacity raised", 0, []float64{9}, []float64{9}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWindow(tt.capacity)
			for _, v := range tt.pushes {
				w.Push(v)
			}

			if got := w.Values(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Values() = %v, want %v", got, tt.want)
			}
			if w.Full() != tt.full {
				t.Errorf("Full() = %v, want %v", w.Full(), tt.full)
			}
			if w.Len() != len(tt.want) {
				t.Errorf("Len() = %d, want %d", w.Len(), len(tt.want))
			}
		})
	}
}

func TestWindow_ValuesIsCopy(t *testing.T) {
	w := NewWindow(2)
	w.Push(1)
	w.Push(2)

	got := w.Values()
	got[0] = 100

	if w.Values()[0] != 1 {
		t.Error("mutating Values() result changed the window")
	}
}

func TestWindow_Reset(t *testing.T) {
	w := NewWindow(3)
	w.Push(1)
	w.Push(2)
	w.Push(3)
	w.Reset()

	if w.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", w.Len())
	}
	if w.Cap() != 3 {
		t.Errorf("Cap() after Reset = %d, want 3", w.Cap())
	}

	w.Push(7)
	if got := w.Values(); !reflect.DeepEqual(got, []float64{7}) {
		t.Errorf("Values() after Reset and Push = %v, want [7]", got)
	}
}
