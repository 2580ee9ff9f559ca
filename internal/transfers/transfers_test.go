package transfers

import (
	"path/filepath"
	"testing"

	"github.com/cps-schoolcrime/internal/db"
)

const (
	fullWKT = "POLYGON ((-87.64 41.87, -87.63 41.87, -87.63 41.88, -87.64 41.88, -87.64 41.87))"
	// Covers the western half of fullWKT.
	westHalfWKT = "POLYGON ((-87.64 41.87, -87.635 41.87, -87.635 41.88, -87.64 41.88, -87.64 41.87))"
	// Covers the eastern half of fullWKT.
	eastHalfWKT = "POLYGON ((-87.635 41.87, -87.63 41.87, -87.63 41.88, -87.635 41.88, -87.635 41.87))"
	// Far away from fullWKT.
	disjointWKT = "POLYGON ((-87.60 41.87, -87.59 41.87, -87.59 41.88, -87.60 41.88, -87.60 41.87))"
)

func seed(t *testing.T, conn *db.Connection, query string, args ...interface{}) {
	t.Helper()
	if _, err := conn.DB.Exec(query, args...); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestComputeSplitsClosedArea(t *testing.T) {
	conn, err := db.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// School 100 closed in 2013; its SY1213 area is split between 200 and
	// 300 in SY1314. School 400 is far away and receives nothing.
	boundary := `INSERT INTO schools (school_id, school_nm, grade_cat, file_year, geom_wkt) VALUES (?, ?, 'ES', ?, ?)`
	seed(t, conn, boundary, 100, "Lincoln Elementary School", "1213", fullWKT)
	seed(t, conn, boundary, 200, "Washington Elementary School", "1314", westHalfWKT)
	seed(t, conn, boundary, 300, "Pulaski Academy", "1314", eastHalfWKT)
	seed(t, conn, boundary, 400, "Jefferson Middle School", "1314", disjointWKT)

	seed(t, conn, `INSERT INTO closures (school_id, school_nm, grade_cat, last_open_year, closure_year, source)
		VALUES (100, 'Lincoln Elementary School', 'ES', 2012, 2013, 'computed')`)

	computer := NewComputer(conn.DB)
	total, err := computer.Compute(2008, 2018)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("computed %d transfer pairs, want 2", total)
	}

	all, err := computer.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}

	var westArea, eastArea float64
	for _, tr := range all {
		if tr.ClosedID != 100 {
			t.Errorf("transfer from school %d, want 100", tr.ClosedID)
		}
		if tr.ClosureYear != 2013 {
			t.Errorf("transfer closure year = %d, want 2013", tr.ClosureYear)
		}
		switch tr.ReceivingID {
		case 200:
			westArea = tr.AreaSqm
		case 300:
			eastArea = tr.AreaSqm
		default:
			t.Errorf("unexpected receiving school %d", tr.ReceivingID)
		}
	}

	if westArea <= 0 || eastArea <= 0 {
		t.Fatalf("transfer areas = %f / %f, want both positive", westArea, eastArea)
	}
	// The two halves are congruent in Mercator.
	ratio := westArea / eastArea
	if ratio < 0.99 || ratio > 1.01 {
		t.Errorf("half areas differ: %f vs %f", westArea, eastArea)
	}
}
