// Package maps renders static Leaflet HTML artifacts: one map per academic
// year, a time-slider map across years, and per-closure-year transfer maps.
// Geometry is serialised as GeoJSON in WGS84; the working store keeps WKT.
package maps

import (
	"database/sql"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"

	"github.com/cps-schoolcrime/internal/etl"
	"github.com/cps-schoolcrime/internal/geo"
)

// chicago is the default map center.
var chicago = [2]float64{41.8781, -87.6298}

// Renderer builds map artifacts from the working store.
type Renderer struct {
	db *sql.DB
}

// NewRenderer creates a map renderer.
func NewRenderer(db *sql.DB) *Renderer {
	return &Renderer{db: db}
}

// gradeColor follows the boundary styling convention: elementary blue,
// middle green, high red.
func gradeColor(gradeCat string) string {
	switch gradeCat {
	case "ES":
		return "#1f77b4"
	case "MS":
		return "#2ca02c"
	case "HS":
		return "#d62728"
	}
	return "#7f7f7f"
}

// rosterYears lists the distinct boundary year codes, ordered.
func (r *Renderer) rosterYears() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT file_year FROM schools ORDER BY file_year")
	if err != nil {
		return nil, fmt.Errorf("failed to query roster years: %w", err)
	}
	defer rows.Close()

	var years []string
	for rows.Next() {
		var y string
		if err := rows.Scan(&y); err != nil {
			return nil, fmt.Errorf("failed to scan roster year: %w", err)
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// boundaryFeatures builds WGS84 boundary features for one roster year. Pass
// "" for every year.
func (r *Renderer) boundaryFeatures(fileYear string) (*geojson.FeatureCollection, error) {
	query := `
		SELECT school_id, COALESCE(school_nm, ''), COALESCE(grade_cat, ''), file_year, geom_wkt
		FROM schools WHERE school_id IS NOT NULL`
	args := []interface{}{}
	if fileYear != "" {
		query += " AND file_year = ?"
		args = append(args, fileYear)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query boundaries: %w", err)
	}
	defer rows.Close()

	fc := geojson.NewFeatureCollection()
	for rows.Next() {
		var id int64
		var nm, grade, year, wktText string
		if err := rows.Scan(&id, &nm, &grade, &year, &wktText); err != nil {
			return nil, fmt.Errorf("failed to scan boundary: %w", err)
		}
		b, err := geo.ParseBoundary(wktText)
		if err != nil {
			continue
		}
		f := geojson.NewFeature(b.WGS84)
		f.Properties["school_id"] = id
		f.Properties["school_nm"] = nm
		f.Properties["grade_cat"] = grade
		f.Properties["file_year"] = year
		if start, ok := etl.AcademicYearStart(year); ok {
			f.Properties["year_start"] = start
		}
		f.Properties["color"] = gradeColor(grade)
		fc.Append(f)
	}
	return fc, rows.Err()
}

// crimeFeatures builds point features for school-flagged crimes in one
// calendar year. Pass 0 for every year.
func (r *Renderer) crimeFeatures(calendarYear int) (*geojson.FeatureCollection, error) {
	query := `
		SELECT id, COALESCE(primary_type, ''), COALESCE(location_description, ''),
			COALESCE(year, 0), latitude, longitude
		FROM crimes
		WHERE at_school = 1 AND latitude IS NOT NULL AND longitude IS NOT NULL`
	args := []interface{}{}
	if calendarYear > 0 {
		query += " AND year = ?"
		args = append(args, calendarYear)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query crime points: %w", err)
	}
	defer rows.Close()

	fc := geojson.NewFeatureCollection()
	for rows.Next() {
		var id, primaryType, location string
		var year int
		var lat, lon float64
		if err := rows.Scan(&id, &primaryType, &location, &year, &lat, &lon); err != nil {
			return nil, fmt.Errorf("failed to scan crime point: %w", err)
		}
		f := geojson.NewFeature(pointWGS84(lon, lat))
		f.Properties["id"] = id
		f.Properties["primary_type"] = primaryType
		f.Properties["location_description"] = location
		f.Properties["year"] = year
		fc.Append(f)
	}
	return fc, rows.Err()
}

// intersectionFeatures builds the transfer-overlay patches for one closure
// year: each patch is the overlap of a closed school's final boundary with a
// receiving school's next-year boundary.
func (r *Renderer) intersectionFeatures(closureYear int) (*geojson.FeatureCollection, error) {
	transfers, err := r.transferPairs(closureYear)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, t := range transfers {
		closed, err := r.schoolBoundary(t.closedID, closureYear-1)
		if err != nil || closed == nil {
			continue
		}
		receiving, err := r.schoolBoundary(t.receivingID, closureYear)
		if err != nil || receiving == nil {
			continue
		}
		patch, err := geo.Intersection(closed, receiving)
		if err != nil || len(patch) == 0 {
			continue
		}
		f := geojson.NewFeature(project.Geometry(patch, project.Mercator.ToWGS84))
		f.Properties["closed_school_nm"] = t.closedNM
		f.Properties["receiving_school_nm"] = t.receivingNM
		f.Properties["area_sqm"] = t.areaSqm
		fc.Append(f)
	}
	return fc, nil
}

type transferPair struct {
	closedID    int64
	closedNM    string
	receivingID int64
	receivingNM string
	areaSqm     float64
}

func (r *Renderer) transferPairs(closureYear int) ([]transferPair, error) {
	rows, err := r.db.Query(`
		SELECT closed_school_id, COALESCE(closed_school_nm, ''),
			receiving_school_id, COALESCE(receiving_school_nm, ''), transferred_area_sqm
		FROM area_transfers WHERE closure_year = ?
	`, closureYear)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	var out []transferPair
	for rows.Next() {
		var t transferPair
		if err := rows.Scan(&t.closedID, &t.closedNM, &t.receivingID, &t.receivingNM, &t.areaSqm); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// schoolBoundary loads one school's boundary whose academic year starts in
// the given calendar year. Nil when the school has no boundary that year.
func (r *Renderer) schoolBoundary(schoolID int64, yearStart int) (*geo.Boundary, error) {
	rows, err := r.db.Query(`
		SELECT file_year, geom_wkt FROM schools WHERE school_id = ?
	`, schoolID)
	if err != nil {
		return nil, fmt.Errorf("failed to query school boundary: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fileYear, wktText string
		if err := rows.Scan(&fileYear, &wktText); err != nil {
			return nil, fmt.Errorf("failed to scan school boundary: %w", err)
		}
		start, ok := etl.AcademicYearStart(fileYear)
		if !ok || start != yearStart {
			continue
		}
		return geo.ParseBoundary(wktText)
	}
	return nil, rows.Err()
}
