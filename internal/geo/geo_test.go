package geo

import (
	"math"
	"testing"
)

// Small square near the Chicago loop, about 1.1km on each side.
const squareWKT = "POLYGON ((-87.64 41.87, -87.63 41.87, -87.63 41.88, -87.64 41.88, -87.64 41.87))"

func TestParseBoundary(t *testing.T) {
	tests := []struct {
		name    string
		wkt     string
		wantErr bool
	}{
		{
			name: "Polygon",
			wkt:  squareWKT,
		},
		{
			name: "MultiPolygon",
			wkt: "MULTIPOLYGON (((-87.64 41.87, -87.63 41.87, -87.63 41.88, -87.64 41.88, -87.64 41.87))," +
				" ((-87.62 41.87, -87.61 41.87, -87.61 41.88, -87.62 41.88, -87.62 41.87)))",
		},
		{
			name:    "Point Rejected",
			wkt:     "POINT (-87.63 41.87)",
			wantErr: true,
		},
		{
			name:    "Garbage",
			wkt:     "not geometry",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBoundary(tt.wkt)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseBoundary error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestContains(t *testing.T) {
	b, err := ParseBoundary(squareWKT)
	if err != nil {
		t.Fatalf("ParseBoundary failed: %v", err)
	}

	inside := PointMercator(-87.635, 41.875)
	outside := PointMercator(-87.70, 41.875)

	if !b.Contains(inside) {
		t.Error("point inside the square reported as outside")
	}
	if b.Contains(outside) {
		t.Error("point outside the square reported as inside")
	}
}

func TestCentroidInsideSquare(t *testing.T) {
	b, err := ParseBoundary(squareWKT)
	if err != nil {
		t.Fatalf("ParseBoundary failed: %v", err)
	}
	c := b.CentroidWGS84()
	if math.Abs(c[0]-(-87.635)) > 1e-6 || math.Abs(c[1]-41.875) > 1e-3 {
		t.Errorf("centroid = (%f, %f), want near (-87.635, 41.875)", c[0], c[1])
	}
}

func TestDistance(t *testing.T) {
	a := PointMercator(-87.63, 41.87)
	b := PointMercator(-87.63, 41.87)
	if d := Distance(a, b); d != 0 {
		t.Errorf("distance to self = %f, want 0", d)
	}

	c := PointMercator(-87.64, 41.87)
	if d := Distance(a, c); d <= 0 {
		t.Errorf("distance between distinct points = %f, want > 0", d)
	}
}

func TestIntersectionArea(t *testing.T) {
	left, err := ParseBoundary(squareWKT)
	if err != nil {
		t.Fatalf("ParseBoundary failed: %v", err)
	}
	// Overlaps the right half of the first square.
	overlapping, err := ParseBoundary(
		"POLYGON ((-87.635 41.87, -87.625 41.87, -87.625 41.88, -87.635 41.88, -87.635 41.87))")
	if err != nil {
		t.Fatalf("ParseBoundary failed: %v", err)
	}
	disjoint, err := ParseBoundary(
		"POLYGON ((-87.60 41.87, -87.59 41.87, -87.59 41.88, -87.60 41.88, -87.60 41.87))")
	if err != nil {
		t.Fatalf("ParseBoundary failed: %v", err)
	}

	area, err := IntersectionArea(left, overlapping)
	if err != nil {
		t.Fatalf("IntersectionArea failed: %v", err)
	}
	if area <= 0 {
		t.Error("overlapping squares should intersect with positive area")
	}
	half := left.Area() / 2
	if math.Abs(area-half) > half*0.01 {
		t.Errorf("intersection area = %f, want about half of %f", area, left.Area())
	}

	none, err := IntersectionArea(left, disjoint)
	if err != nil {
		t.Fatalf("IntersectionArea failed: %v", err)
	}
	if none != 0 {
		t.Errorf("disjoint squares intersection area = %f, want 0", none)
	}
}
