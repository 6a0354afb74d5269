package geo

import (
	"math"
	"testing"
)

func TestNewRectangleNormalize(t *testing.T) {
	r := NewRectangle(10, 20, -10, -20, true)
	if r.MinX != -10 || r.MinY != -20 || r.MaxX != 10 || r.MaxY != 20 {
		t.Fatalf("normalize did not swap corners: %+v", r)
	}
	raw := NewRectangle(10, 20, -10, -20, false)
	if raw.MinX != 10 || raw.MaxX != -10 {
		t.Fatalf("unnormalized rectangle was altered: %+v", raw)
	}
}

func TestRectangleValid(t *testing.T) {
	tests := []struct {
		name string
		rect Rectangle
		want bool
	}{
		{"ok", NewRectangle(0, 0, 1, 1, false), true},
		{"point", NewRectangle(3, 4, 3, 4, false), true},
		{"nan", NewRectangle(math.NaN(), 0, 1, 1, false), false},
		{"inf", NewRectangle(0, 0, math.Inf(1), 1, false), false},
		{"negative width", NewRectangle(2, 0, 1, 1, false), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rect.Valid(); got != tc.want {
				t.Fatalf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRectangleInvert(t *testing.T) {
	r := NewRectangle(-125, 24, -66, 50, false).Invert()
	want := NewRectangle(24, -125, 50, -66, false)
	if r != want {
		t.Fatalf("Invert() = %+v, want %+v", r, want)
	}
}

func TestRectangleString(t *testing.T) {
	if got := NewRectangle(24, -125.5, 50, -66, false).String(); got != "24,-125.5,50,-66" {
		t.Fatalf("String() = %q", got)
	}
}

func TestRectangleIntersect(t *testing.T) {
	a := NewRectangle(0, 0, 10, 10, false)
	b := NewRectangle(5, 5, 20, 20, false)
	got, ok := a.Intersect(b)
	if !ok || got != NewRectangle(5, 5, 10, 10, false) {
		t.Fatalf("Intersect = %+v ok=%v", got, ok)
	}
	if _, ok := a.Intersect(NewRectangle(11, 11, 12, 12, false)); ok {
		t.Fatal("disjoint rectangles reported as overlapping")
	}
}

func TestBoundingBoxOverlap(t *testing.T) {
	a := NewBoundingBox("EPSG:4326", -10, -10, 10, 10)
	b := NewBoundingBox("EPSG:4326", 0, 0, 20, 20)
	got, ok := Overlap(a, b)
	if !ok || got.Rect != NewRectangle(0, 0, 10, 10, false) {
		t.Fatalf("Overlap = %+v ok=%v", got, ok)
	}
	c := NewBoundingBox("EPSG:3857", 0, 0, 20, 20)
	if _, ok := Overlap(a, c); ok {
		t.Fatal("boxes in different CRSes must not overlap")
	}
}

func TestPointValid(t *testing.T) {
	if !(Point2d{X: 1, Y: 2}).Valid() {
		t.Fatal("finite point reported invalid")
	}
	if (Point2d{X: math.NaN(), Y: 2}).Valid() {
		t.Fatal("NaN point reported valid")
	}
}
