package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/cps-schoolcrime/internal/geo"
)

// SchoolResult is one dashboard search hit with its boundary centroid.
type SchoolResult struct {
	SchoolID  int64   `json:"school_id"`
	SchoolNM  string  `json:"school_nm"`
	SchoolAdd string  `json:"school_add"`
	GradeCat  string  `json:"grade_cat"`
	FileYear  string  `json:"file_year"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// ClosureResult is one closure search hit.
type ClosureResult struct {
	SchoolID     int64  `json:"school_id"`
	SchoolNM     string `json:"school_nm"`
	GradeCat     string `json:"grade_cat"`
	LastOpenYear int    `json:"last_open_year"`
	ClosureYear  int    `json:"closure_year"`
	Source       string `json:"source"`
}

const searchLimit = 200

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// gradeFilter builds the grade_cat IN (...) clause from a comma-separated
// grades parameter. Empty means no filter.
func gradeFilter(grades string) (string, []interface{}) {
	var wanted []interface{}
	for _, g := range strings.Split(grades, ",") {
		g = strings.ToUpper(strings.TrimSpace(g))
		if g != "" {
			wanted = append(wanted, g)
		}
	}
	if len(wanted) == 0 {
		return "", nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(wanted)), ", ")
	return " AND grade_cat IN (" + placeholders + ")", wanted
}

// SearchSchools handles GET /api/schools?q=&grades=. A numeric query matches
// school IDs by substring; anything else matches names case-insensitively.
// One row per (school, grade), from the school's latest boundary file.
func (s *Server) SearchSchools(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	query := `
		SELECT school_id, COALESCE(school_nm, ''), COALESCE(school_add, ''),
			COALESCE(grade_cat, ''), file_year, geom_wkt
		FROM schools s
		WHERE school_id IS NOT NULL
		  AND file_year = (
			SELECT MAX(file_year) FROM schools s2
			WHERE s2.school_id = s.school_id
			  AND COALESCE(s2.grade_cat, '') = COALESCE(s.grade_cat, '')
		  )`
	var args []interface{}

	if q != "" {
		if isDigits(q) {
			query += " AND CAST(school_id AS TEXT) LIKE ?"
			args = append(args, "%"+q+"%")
		} else {
			query += " AND lower(school_nm) LIKE ?"
			args = append(args, "%"+strings.ToLower(q)+"%")
		}
	}
	clause, gradeArgs := gradeFilter(r.URL.Query().Get("grades"))
	query += clause
	args = append(args, gradeArgs...)
	query += fmt.Sprintf(" ORDER BY school_nm LIMIT %d", searchLimit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	results := []SchoolResult{}
	for rows.Next() {
		var res SchoolResult
		var wktText string
		if err := rows.Scan(&res.SchoolID, &res.SchoolNM, &res.SchoolAdd,
			&res.GradeCat, &res.FileYear, &wktText); err != nil {
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
		if b, err := geo.ParseBoundary(wktText); err == nil {
			c := b.CentroidWGS84()
			res.Lon, res.Lat = c[0], c[1]
		}
		results = append(results, res)
	}

	writeJSON(w, results)
}

// SearchClosures handles GET /api/closures?q=&grades=.
func (s *Server) SearchClosures(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	query := `
		SELECT school_id, COALESCE(school_nm, ''), COALESCE(grade_cat, ''),
			last_open_year, closure_year, source
		FROM closures
		WHERE 1=1`
	var args []interface{}

	if q != "" {
		if isDigits(q) {
			query += " AND CAST(school_id AS TEXT) LIKE ?"
			args = append(args, "%"+q+"%")
		} else {
			query += " AND lower(school_nm) LIKE ?"
			args = append(args, "%"+strings.ToLower(q)+"%")
		}
	}
	clause, gradeArgs := gradeFilter(r.URL.Query().Get("grades"))
	query += clause
	args = append(args, gradeArgs...)
	query += fmt.Sprintf(" ORDER BY closure_year, school_nm LIMIT %d", searchLimit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	results := []ClosureResult{}
	for rows.Next() {
		var res ClosureResult
		if err := rows.Scan(&res.SchoolID, &res.SchoolNM, &res.GradeCat,
			&res.LastOpenYear, &res.ClosureYear, &res.Source); err != nil {
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
		results = append(results, res)
	}

	writeJSON(w, results)
}

// StatsResponse summarises the working store for the dashboard header.
type StatsResponse struct {
	Schools      int `json:"schools"`
	Closures     int `json:"closures"`
	SchoolCrimes int `json:"school_crimes"`
	Transfers    int `json:"transfers"`
}

// GetStats handles GET /api/stats.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	var stats StatsResponse
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(DISTINCT school_id) FROM schools", &stats.Schools},
		{"SELECT COUNT(*) FROM closures", &stats.Closures},
		{"SELECT COUNT(*) FROM crimes WHERE at_school = 1", &stats.SchoolCrimes},
		{"SELECT COUNT(*) FROM area_transfers", &stats.Transfers},
	}
	for _, q := range queries {
		if err := s.db.QueryRow(q.query).Scan(q.dest); err != nil {
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, stats)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Encoding error", http.StatusInternalServerError)
	}
}
