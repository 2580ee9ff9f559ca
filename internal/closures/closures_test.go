package closures

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/cps-schoolcrime/internal/db"
	"github.com/cps-schoolcrime/internal/review"
)

func writeCSV(t *testing.T, path string, rows [][]string) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

const testWKT = "POLYGON ((-87.64 41.87, -87.63 41.87, -87.63 41.88, -87.64 41.88, -87.64 41.87))"

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	conn, err := db.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	queue := review.NewQueue(conn.DB)
	return NewEngine(conn.DB, queue, 80, 90, 2019)
}

func seedSchool(t *testing.T, e *Engine, id int64, nm, grade string, years ...string) {
	t.Helper()
	for _, y := range years {
		_, err := e.db.Exec(`
			INSERT INTO schools (school_id, school_nm, school_add, grade_cat, file_year, geom_wkt)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, nm, "100 W MAIN ST", grade, y, testWKT)
		if err != nil {
			t.Fatalf("failed to seed school %d: %v", id, err)
		}
	}
}

func TestComputeFromBoundaries(t *testing.T) {
	e := newTestEngine(t)

	// Closed after SY1314: last open 2013, closure 2014.
	seedSchool(t, e, 100, "Lincoln Elementary School", "ES", "1213", "1314")
	// Present through the end of the series: never closed.
	seedSchool(t, e, 200, "Washington High School", "HS", "1213", "1314", "1415", "1516", "1617", "1718", "1819")

	count, err := e.ComputeFromBoundaries()
	if err != nil {
		t.Fatalf("ComputeFromBoundaries failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("computed %d closures, want 1", count)
	}

	all, err := e.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("closure table has %d rows, want 1", len(all))
	}
	c := all[0]
	if c.SchoolID != 100 {
		t.Errorf("closed school = %d, want 100", c.SchoolID)
	}
	if c.LastOpenYear != 2013 || c.ClosureYear != 2014 {
		t.Errorf("closure years = (%d, %d), want (2013, 2014)", c.LastOpenYear, c.ClosureYear)
	}
}

// Every reconciled record must satisfy closure_year == last_open_year + 1.
func TestClosureYearInvariant(t *testing.T) {
	e := newTestEngine(t)
	seedSchool(t, e, 100, "Lincoln Elementary School", "ES", "0809", "0910")
	seedSchool(t, e, 300, "Pulaski Academy", "ES", "1213")

	if _, err := e.ComputeFromBoundaries(); err != nil {
		t.Fatalf("ComputeFromBoundaries failed: %v", err)
	}

	all, err := e.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) == 0 {
		t.Fatal("no closures computed")
	}
	for _, c := range all {
		if c.ClosureYear != c.LastOpenYear+1 {
			t.Errorf("school %d: closure %d != last open %d + 1", c.SchoolID, c.ClosureYear, c.LastOpenYear)
		}
	}
}

func TestFinalizeEarliestWins(t *testing.T) {
	e := newTestEngine(t)

	rows := []Closure{
		{SchoolID: 100, SchoolNM: "Lincoln Elementary School", GradeCat: "ES", LastOpenYear: 2013, ClosureYear: 2014, Source: SourceComputed},
		{SchoolID: 100, SchoolNM: "Lincoln Elementary School", GradeCat: "ES", LastOpenYear: 2011, ClosureYear: 2012, Source: SourceReference},
		{SchoolID: 200, SchoolNM: "Washington High School", GradeCat: "HS", LastOpenYear: 2012, ClosureYear: 2013, Source: SourceWave2013},
	}
	for _, c := range rows {
		_, err := e.db.Exec(`
			INSERT INTO closures (school_id, school_nm, grade_cat, last_open_year, closure_year, source)
			VALUES (?, ?, ?, ?, ?, ?)
		`, c.SchoolID, c.SchoolNM, c.GradeCat, c.LastOpenYear, c.ClosureYear, c.Source)
		if err != nil {
			t.Fatalf("failed to seed closure: %v", err)
		}
	}

	remaining, err := e.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("finalized to %d rows, want 2", remaining)
	}

	all, err := e.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	seen := make(map[int64]int)
	for _, c := range all {
		seen[c.SchoolID]++
		if c.SchoolID == 100 && c.ClosureYear != 2012 {
			t.Errorf("school 100 kept closure year %d, want earliest 2012", c.ClosureYear)
		}
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("school %d has %d closure rows after finalize", id, n)
		}
	}
}

func TestMatchWave2013AddressAppend(t *testing.T) {
	e := newTestEngine(t)
	seedSchool(t, e, 500, "Lincoln Elementary School", "ES", "1213", "1314")

	dir := t.TempDir()
	listPath := filepath.Join(dir, "wave2013.csv")
	writeCSV(t, listPath, [][]string{
		{"school_nm", "address"},
		{"Lincoln Elementary School", "100 W Main St"},
	})

	added, err := e.MatchWave2013(listPath, filepath.Join(dir, "name_review.csv"))
	if err != nil {
		t.Fatalf("MatchWave2013 failed: %v", err)
	}
	if added != 1 {
		t.Fatalf("wave match added %d closures, want 1", added)
	}

	all, err := e.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	c := all[0]
	if c.SchoolID != 500 || c.LastOpenYear != 2012 || c.ClosureYear != 2013 {
		t.Errorf("wave closure = %+v, want school 500 closed 2013", c)
	}
	if c.Source != SourceWave2013 {
		t.Errorf("closure source = %s, want %s", c.Source, SourceWave2013)
	}
}

func TestDiscrepancyRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	rows := []Closure{
		{SchoolID: 100, SchoolNM: "Lincoln Elementary School", GradeCat: "ES", LastOpenYear: 2013, ClosureYear: 2014, Source: SourceComputed},
		{SchoolID: 100, SchoolNM: "Lincoln Elementary School", GradeCat: "ES", LastOpenYear: 2012, ClosureYear: 2013, Source: SourceReference},
		{SchoolID: 200, SchoolNM: "Washington High School", GradeCat: "HS", LastOpenYear: 2015, ClosureYear: 2016, Source: SourceComputed},
		{SchoolID: 200, SchoolNM: "Washington High School", GradeCat: "HS", LastOpenYear: 2014, ClosureYear: 2015, Source: SourceReference},
		// Signals agree: no discrepancy row.
		{SchoolID: 300, SchoolNM: "Pulaski Academy", GradeCat: "ES", LastOpenYear: 2012, ClosureYear: 2013, Source: SourceComputed},
		{SchoolID: 300, SchoolNM: "Pulaski Academy", GradeCat: "ES", LastOpenYear: 2012, ClosureYear: 2013, Source: SourceReference},
	}
	for _, c := range rows {
		_, err := e.db.Exec(`
			INSERT INTO closures (school_id, school_nm, grade_cat, last_open_year, closure_year, source)
			VALUES (?, ?, ?, ?, ?, ?)
		`, c.SchoolID, c.SchoolNM, c.GradeCat, c.LastOpenYear, c.ClosureYear, c.Source)
		if err != nil {
			t.Fatalf("failed to seed closure: %v", err)
		}
	}

	dir := t.TempDir()
	discrepancyPath := filepath.Join(dir, "discrepancies.csv")
	count, err := e.WriteDiscrepancies(discrepancyPath)
	if err != nil {
		t.Fatalf("WriteDiscrepancies failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("wrote %d discrepancies, want the 2 conflicting schools", count)
	}

	file, err := os.Open(discrepancyPath)
	if err != nil {
		t.Fatalf("failed to reopen discrepancies: %v", err)
	}
	records, err := csv.NewReader(file).ReadAll()
	file.Close()
	if err != nil {
		t.Fatalf("failed to parse discrepancies: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("discrepancy CSV has %d rows, want header + 2", len(records))
	}
	if records[1][0] != "100" || records[1][2] != "2014" || records[1][3] != "2013" {
		t.Errorf("school 100 discrepancy row = %v, want computed 2014 vs reference 2013", records[1])
	}
	if records[1][4] != "" {
		t.Errorf("corrected_closure_year = %q, want blank for the reviewer to fill", records[1][4])
	}

	// The reviewer settles school 100 on the reference year and leaves
	// school 200 blank.
	records[1][4] = "2013"
	reviewedPath := filepath.Join(dir, "reviewed.csv")
	writeCSV(t, reviewedPath, records)

	applied, err := e.ApplyCorrections(reviewedPath)
	if err != nil {
		t.Fatalf("ApplyCorrections failed: %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied %d corrections, want 1 (blank rows skipped)", applied)
	}

	all, err := e.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	for _, c := range all {
		switch c.SchoolID {
		case 100:
			if c.ClosureYear != 2013 {
				t.Errorf("school 100 %s closure = %d, want every row corrected to 2013", c.Source, c.ClosureYear)
			}
		case 200:
			want := map[string]int{SourceComputed: 2016, SourceReference: 2015}
			if c.ClosureYear != want[c.Source] {
				t.Errorf("school 200 %s closure = %d, want untouched %d", c.Source, c.ClosureYear, want[c.Source])
			}
		}
		if c.ClosureYear != c.LastOpenYear+1 {
			t.Errorf("school %d: closure %d != last open %d + 1", c.SchoolID, c.ClosureYear, c.LastOpenYear)
		}
	}
}

func TestMatchReferenceAppendsAbsentSchools(t *testing.T) {
	e := newTestEngine(t)
	seedSchool(t, e, 400, "Jefferson Middle School", "MS", "1213", "1314")

	dir := t.TempDir()
	refPath := filepath.Join(dir, "reference.csv")
	writeCSV(t, refPath, [][]string{
		{"school_nm", "grade_cat", "year_closed"},
		{"Jefferson Middle Schl", "MS", "2014"},
		{"Completely Unknown Academy Of Something Else", "ES", "2010"},
	})

	added, err := e.MatchReference(refPath, filepath.Join(dir, "matched.csv"))
	if err != nil {
		t.Fatalf("MatchReference failed: %v", err)
	}
	if added != 1 {
		t.Fatalf("reference match added %d closures, want 1", added)
	}

	all, err := e.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 1 || all[0].SchoolID != 400 {
		t.Fatalf("unexpected closure rows: %+v", all)
	}
	if all[0].ClosureYear != 2014 || all[0].LastOpenYear != 2013 {
		t.Errorf("closure years = (%d, %d), want (2013, 2014)", all[0].LastOpenYear, all[0].ClosureYear)
	}
	if all[0].Source != SourceReference {
		t.Errorf("closure source = %s, want %s", all[0].Source, SourceReference)
	}
}
