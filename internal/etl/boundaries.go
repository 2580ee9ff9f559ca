// Package etl loads the yearly CPS boundary CSVs into the working store,
// collapsing their inconsistent column names into one canonical schema and
// parsing boundary geometry from WKT. A file that cannot be read is logged
// and skipped; the batch continues.
package etl

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cps-schoolcrime/internal/geo"
)

// Loader handles boundary-file ingestion.
type Loader struct {
	db *sql.DB
}

// NewLoader creates a boundary loader over the working store.
func NewLoader(db *sql.DB) *Loader {
	return &Loader{db: db}
}

// boundaryKeywords select the files of interest; network- and charter-level
// files cover different units and are excluded.
var boundaryKeywords = []string{"Attendance", "Boundaries"}

// DiscoverFiles finds boundary CSVs under dir.
func DiscoverFiles(dir string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	for _, keyword := range boundaryKeywords {
		matched, err := filepath.Glob(filepath.Join(dir, "*"+keyword+"*.csv"))
		if err != nil {
			return nil, fmt.Errorf("failed to glob boundary files: %w", err)
		}
		for _, f := range matched {
			base := strings.ToLower(filepath.Base(f))
			if strings.Contains(base, "network") || strings.Contains(base, "charter") {
				continue
			}
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files, nil
}

// LoadBoundaries clears the schools table and loads every boundary CSV found
// under dir. Returns the number of rows loaded and the number of files
// skipped.
func (l *Loader) LoadBoundaries(dir string) (int, int, error) {
	files, err := DiscoverFiles(dir)
	if err != nil {
		return 0, 0, err
	}
	fmt.Printf("Found %d boundary files under %s\n", len(files), dir)

	if _, err := l.db.Exec("DELETE FROM schools"); err != nil {
		return 0, 0, fmt.Errorf("failed to clear schools table: %w", err)
	}

	stmt, err := l.db.Prepare(`
		INSERT INTO schools (school_id, school_nm, school_add, grade_cat, boundary_gr, file_year, geom_wkt)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare schools insert: %w", err)
	}
	defer stmt.Close()

	totalRows := 0
	skippedFiles := 0

	for _, path := range files {
		rows, err := l.loadFile(stmt, path)
		if err != nil {
			fmt.Printf("Error processing %s: %v\n", filepath.Base(path), err)
			skippedFiles++
			continue
		}
		totalRows += rows
	}

	fmt.Printf("Loaded %d school boundary rows (%d files skipped)\n", totalRows, skippedFiles)
	return totalRows, skippedFiles, nil
}

// loadFile loads one boundary CSV. Rows with unparsable geometry are skipped
// individually; a missing geometry column fails the whole file.
func (l *Loader) loadFile(stmt *sql.Stmt, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read CSV header: %w", err)
	}
	header = NormalizeColumns(header)

	columnMap := make(map[string]int)
	for i, col := range header {
		columnMap[strings.ToLower(col)] = i
	}

	if _, ok := columnMap["the_geom"]; !ok {
		return 0, fmt.Errorf("missing the_geom column")
	}

	fileYear := FileYear(filepath.Base(path))
	if fileYear == "" {
		return 0, fmt.Errorf("no 4-digit year code in filename")
	}

	rowCount := 0
	badGeoms := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Printf("Error reading record %d in %s: %v\n", rowCount, filepath.Base(path), err)
			continue
		}

		wktText := getColumnValue(record, columnMap, "the_geom")
		if wktText == "" {
			badGeoms++
			continue
		}
		if _, err := geo.ParseBoundary(wktText); err != nil {
			badGeoms++
			continue
		}

		_, err = stmt.Exec(
			parseNullableInt(getColumnValue(record, columnMap, "school_id")),
			nullIfEmpty(getColumnValue(record, columnMap, "school_nm")),
			nullIfEmpty(getColumnValue(record, columnMap, "school_add")),
			nullIfEmpty(getColumnValue(record, columnMap, "grade_cat")),
			nullIfEmpty(getColumnValue(record, columnMap, "boundarygr")),
			fileYear,
			wktText,
		)
		if err != nil {
			fmt.Printf("Error inserting record %d from %s: %v\n", rowCount, filepath.Base(path), err)
			continue
		}
		rowCount++
	}

	if badGeoms > 0 {
		fmt.Printf("%s: dropped %d rows with missing or invalid geometry\n", filepath.Base(path), badGeoms)
	}
	fmt.Printf("%s: loaded %d rows (year %s)\n", filepath.Base(path), rowCount, fileYear)
	return rowCount, nil
}

// Helpers for nullable CSV values.

func getColumnValue(record []string, columnMap map[string]int, columnName string) string {
	if idx, exists := columnMap[strings.ToLower(columnName)]; exists && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func parseNullableInt(s string) interface{} {
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	// Some files carry IDs as floats ("609772.0").
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return nil
}
