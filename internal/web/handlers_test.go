package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/cps-schoolcrime/internal/db"
)

const testWKT = "POLYGON ((-87.64 41.87, -87.63 41.87, -87.63 41.88, -87.64 41.88, -87.64 41.87))"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	conn, err := db.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	boundary := `INSERT INTO schools (school_id, school_nm, school_add, grade_cat, file_year, geom_wkt)
		VALUES (?, ?, ?, ?, ?, ?)`
	seeds := []struct {
		id    int64
		nm    string
		grade string
		year  string
	}{
		{609772, "Lincoln Elementary School", "ES", "1213"},
		{609772, "Lincoln Elementary School", "ES", "1314"},
		{609900, "Washington High School", "HS", "1314"},
	}
	for _, s := range seeds {
		if _, err := conn.DB.Exec(boundary, s.id, s.nm, "100 W MAIN ST", s.grade, s.year, testWKT); err != nil {
			t.Fatalf("failed to seed school: %v", err)
		}
	}
	if _, err := conn.DB.Exec(`INSERT INTO closures (school_id, school_nm, grade_cat, last_open_year, closure_year, source)
		VALUES (609772, 'Lincoln Elementary School', 'ES', 2013, 2014, 'computed')`); err != nil {
		t.Fatalf("failed to seed closure: %v", err)
	}

	return NewServer(conn.DB, "localhost", 0)
}

func get(t *testing.T, s *Server, url string, v interface{}) {
	t.Helper()
	req := httptest.NewRequest("GET", url, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s returned %d", url, rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("GET %s returned invalid JSON: %v", url, err)
	}
}

func TestSearchSchoolsByName(t *testing.T) {
	s := newTestServer(t)

	var results []SchoolResult
	get(t, s, "/api/schools?q=lincoln", &results)

	if len(results) != 1 {
		t.Fatalf("name search returned %d results, want 1 (latest year only)", len(results))
	}
	r := results[0]
	if r.SchoolID != 609772 {
		t.Errorf("school_id = %d, want 609772", r.SchoolID)
	}
	if r.FileYear != "1314" {
		t.Errorf("file_year = %s, want the latest 1314", r.FileYear)
	}
	if r.Lat == 0 || r.Lon == 0 {
		t.Error("centroid coordinates missing")
	}
}

func TestSearchSchoolsByID(t *testing.T) {
	s := newTestServer(t)

	var results []SchoolResult
	get(t, s, "/api/schools?q=609900", &results)
	if len(results) != 1 || results[0].SchoolNM != "Washington High School" {
		t.Fatalf("ID search results = %+v, want Washington High School", results)
	}
}

func TestSearchSchoolsGradeFilter(t *testing.T) {
	s := newTestServer(t)

	var results []SchoolResult
	get(t, s, "/api/schools?grades=HS", &results)
	if len(results) != 1 || results[0].GradeCat != "HS" {
		t.Fatalf("grade filter results = %+v, want only HS", results)
	}

	get(t, s, "/api/schools?grades=ES,HS", &results)
	if len(results) != 2 {
		t.Fatalf("multi-grade filter returned %d results, want 2", len(results))
	}
}

func TestSearchClosures(t *testing.T) {
	s := newTestServer(t)

	var results []ClosureResult
	get(t, s, "/api/closures?q=lincoln", &results)
	if len(results) != 1 {
		t.Fatalf("closure search returned %d results, want 1", len(results))
	}
	if results[0].ClosureYear != 2014 || results[0].Source != "computed" {
		t.Errorf("closure = %+v, want 2014/computed", results[0])
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(t)

	var stats StatsResponse
	get(t, s, "/api/stats", &stats)
	if stats.Schools != 2 {
		t.Errorf("schools = %d, want 2 distinct", stats.Schools)
	}
	if stats.Closures != 1 {
		t.Errorf("closures = %d, want 1", stats.Closures)
	}
}

func TestIndexPageServed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("index page returned %d", rec.Code)
	}
	body := rec.Body.String()
	if len(body) == 0 || body[0] != '<' {
		t.Error("index page did not return HTML")
	}
}
