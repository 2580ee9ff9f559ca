// Package spatial joins school-flagged crime points to boundary polygons.
// All metric work happens in Web Mercator, matching the projection the
// boundary series is analysed in.
package spatial

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/cps-schoolcrime/internal/etl"
	"github.com/cps-schoolcrime/internal/geo"
)

// boundaryRow is one projected school boundary with its roster metadata.
type boundaryRow struct {
	SchoolID int64
	SchoolNM string
	GradeCat string
	FileYear string
	Boundary *geo.Boundary
	centroid orb.Point
}

// Joiner indexes every boundary polygon in memory and runs the point joins.
type Joiner struct {
	db         *sql.DB
	boundaries []boundaryRow
}

// NewJoiner loads and projects every boundary row. Rows with unparsable
// geometry were dropped at load time, so a parse failure here is an error.
func NewJoiner(db *sql.DB) (*Joiner, error) {
	rows, err := db.Query(`
		SELECT school_id, COALESCE(school_nm, ''), COALESCE(grade_cat, ''), file_year, geom_wkt
		FROM schools
		WHERE school_id IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query school boundaries: %w", err)
	}
	defer rows.Close()

	j := &Joiner{db: db}
	for rows.Next() {
		var b boundaryRow
		var wktText string
		if err := rows.Scan(&b.SchoolID, &b.SchoolNM, &b.GradeCat, &b.FileYear, &wktText); err != nil {
			return nil, fmt.Errorf("failed to scan boundary row: %w", err)
		}
		boundary, err := geo.ParseBoundary(wktText)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored geometry for school %d: %w", b.SchoolID, err)
		}
		b.Boundary = boundary
		b.centroid = boundary.Centroid()
		j.boundaries = append(j.boundaries, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fmt.Printf("Indexed %d boundary polygons\n", len(j.boundaries))
	return j, nil
}

// crimePoint is one school-flagged crime with a usable location.
type crimePoint struct {
	ID          string
	Date        time.Time
	PrimaryType string
	Point       orb.Point
}

func (j *Joiner) schoolCrimes() ([]crimePoint, error) {
	rows, err := j.db.Query(`
		SELECT id, date, COALESCE(primary_type, ''), latitude, longitude
		FROM crimes
		WHERE at_school = 1
		  AND date IS NOT NULL AND latitude IS NOT NULL AND longitude IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query school crimes: %w", err)
	}
	defer rows.Close()

	var out []crimePoint
	for rows.Next() {
		var c crimePoint
		var lat, lon float64
		if err := rows.Scan(&c.ID, &c.Date, &c.PrimaryType, &lat, &lon); err != nil {
			return nil, fmt.Errorf("failed to scan crime row: %w", err)
		}
		c.Point = geo.PointMercator(lon, lat)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ContainmentJoin finds, for every school-flagged crime, the boundary
// polygons containing its point and groups the school IDs by grade category.
// IDs are unique per list and keep first-hit order. Replaces prior results.
func (j *Joiner) ContainmentJoin() (int, error) {
	crimes, err := j.schoolCrimes()
	if err != nil {
		return 0, err
	}
	fmt.Printf("Joining %d school crimes against boundaries\n", len(crimes))

	if _, err := j.db.Exec("DELETE FROM crime_school_match"); err != nil {
		return 0, fmt.Errorf("failed to clear crime_school_match: %w", err)
	}

	stmt, err := j.db.Prepare(`
		INSERT INTO crime_school_match (crime_id, date, primary_type, es_schools, ms_schools, hs_schools)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare containment insert: %w", err)
	}
	defer stmt.Close()

	matched := 0
	for i, c := range crimes {
		lists := map[string][]int64{}
		seen := map[string]map[int64]bool{}

		for _, b := range j.boundaries {
			if !b.Boundary.Contains(c.Point) {
				continue
			}
			grade := gradeKey(b.GradeCat)
			if grade == "" {
				continue
			}
			if seen[grade] == nil {
				seen[grade] = map[int64]bool{}
			}
			if seen[grade][b.SchoolID] {
				continue
			}
			seen[grade][b.SchoolID] = true
			lists[grade] = append(lists[grade], b.SchoolID)
		}

		if len(lists) == 0 {
			continue
		}
		_, err := stmt.Exec(c.ID, c.Date, c.PrimaryType,
			jsonIDs(lists["ES"]), jsonIDs(lists["MS"]), jsonIDs(lists["HS"]))
		if err != nil {
			return matched, fmt.Errorf("failed to insert containment match for %s: %w", c.ID, err)
		}
		matched++

		if (i+1)%10000 == 0 {
			fmt.Printf("  processed %d/%d crimes\n", i+1, len(crimes))
		}
	}

	fmt.Printf("Containment join matched %d crimes\n", matched)
	return matched, nil
}

// NearestAssign attaches each school crime to the school with the nearest
// boundary centroid, recording the distance in meters and the roster years
// whose polygon for that school contains the point. Replaces prior results.
func (j *Joiner) NearestAssign() (int, error) {
	crimes, err := j.schoolCrimes()
	if err != nil {
		return 0, err
	}

	if _, err := j.db.Exec("DELETE FROM crime_nearest"); err != nil {
		return 0, fmt.Errorf("failed to clear crime_nearest: %w", err)
	}

	stmt, err := j.db.Prepare(`
		INSERT INTO crime_nearest (crime_id, school_id, school_nm, grade_cat, distance_m, years_in_boundary, temporal_ok)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare nearest insert: %w", err)
	}
	defer stmt.Close()

	assigned := 0
	for i, c := range crimes {
		var best *boundaryRow
		bestDist := 0.0
		for bi := range j.boundaries {
			b := &j.boundaries[bi]
			d := geo.Distance(c.Point, b.centroid)
			if best == nil || d < bestDist {
				best = b
				bestDist = d
			}
		}
		if best == nil {
			continue
		}

		var years []string
		for _, b := range j.boundaries {
			if b.SchoolID == best.SchoolID && b.Boundary.Contains(c.Point) {
				years = append(years, b.FileYear)
			}
		}

		yearsJSON, _ := json.Marshal(years)
		_, err := stmt.Exec(c.ID, best.SchoolID, best.SchoolNM, best.GradeCat,
			bestDist, string(yearsJSON))
		if err != nil {
			return assigned, fmt.Errorf("failed to insert nearest match for %s: %w", c.ID, err)
		}
		assigned++

		if (i+1)%10000 == 0 {
			fmt.Printf("  processed %d/%d crimes\n", i+1, len(crimes))
		}
	}

	fmt.Printf("Nearest-school assignment covered %d crimes\n", assigned)
	return assigned, nil
}

// TemporalFilter marks nearest assignments whose crime year matches one of
// the roster years the point actually fell inside. A 2013 crime passes only
// if a year code ending in "13" is among its years_in_boundary.
func (j *Joiner) TemporalFilter() (int, error) {
	rows, err := j.db.Query(`
		SELECT n.crime_id, n.years_in_boundary, c.date
		FROM crime_nearest n
		JOIN crimes c ON c.id = n.crime_id
		WHERE c.date IS NOT NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to query nearest assignments: %w", err)
	}

	type verdict struct {
		crimeID string
		ok      bool
	}
	var verdicts []verdict

	for rows.Next() {
		var crimeID, yearsJSON string
		var date time.Time
		if err := rows.Scan(&crimeID, &yearsJSON, &date); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan nearest assignment: %w", err)
		}
		var years []string
		if err := json.Unmarshal([]byte(yearsJSON), &years); err != nil {
			continue
		}
		suffix := fmt.Sprintf("%02d", date.Year()%100)
		ok := false
		for _, y := range years {
			if etl.YearSuffixMatches(y, suffix) {
				ok = true
				break
			}
		}
		verdicts = append(verdicts, verdict{crimeID: crimeID, ok: ok})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	kept := 0
	for _, v := range verdicts {
		flag := 0
		if v.ok {
			flag = 1
			kept++
		}
		if _, err := j.db.Exec("UPDATE crime_nearest SET temporal_ok = ? WHERE crime_id = ?", flag, v.crimeID); err != nil {
			return kept, fmt.Errorf("failed to flag crime %s: %w", v.crimeID, err)
		}
	}

	fmt.Printf("Temporal filter kept %d of %d nearest assignments\n", kept, len(verdicts))
	return kept, nil
}

func gradeKey(gradeCat string) string {
	switch strings.ToUpper(strings.TrimSpace(gradeCat)) {
	case "ES", "ELEMENTARY":
		return "ES"
	case "MS", "MIDDLE":
		return "MS"
	case "HS", "HIGH SCHOOL", "HIGH":
		return "HS"
	}
	return ""
}

func jsonIDs(ids []int64) string {
	if len(ids) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ids)
	return string(b)
}
