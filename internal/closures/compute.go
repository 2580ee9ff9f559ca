// Package closures reconciles school closures from three signals: the year a
// school drops out of the boundary series, the announced 2013 closure wave,
// and an external reference list. Signals merge into one closures table with
// at most one row per school, the earliest documented closure year winning.
package closures

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/cps-schoolcrime/internal/etl"
	"github.com/cps-schoolcrime/internal/review"
)

// Closure signal sources, in merge preference order.
const (
	SourceComputed  = "computed"
	SourceWave2013  = "wave2013"
	SourceReference = "reference"
)

// Closure is one reconciled closure record.
type Closure struct {
	SchoolID     int64
	SchoolNM     string
	GradeCat     string
	LastOpenYear int
	ClosureYear  int
	Source       string
}

// Engine runs closure reconciliation over the working store.
type Engine struct {
	db               *sql.DB
	queue            *review.Queue
	nameThreshold    float64
	addressThreshold float64
	finalYear        int
}

// NewEngine creates a closure engine. finalYear is the first year the crime
// coverage no longer supports; schools disappearing at or after it are not
// treated as closed.
func NewEngine(db *sql.DB, queue *review.Queue, nameThreshold, addressThreshold float64, finalYear int) *Engine {
	return &Engine{
		db:               db,
		queue:            queue,
		nameThreshold:    nameThreshold,
		addressThreshold: addressThreshold,
		finalYear:        finalYear,
	}
}

// schoolYears collects, per (SCHOOL_ID, GRADE_CAT), the academic-year starts
// the school appears in and the name from its earliest boundary file.
type schoolYears struct {
	schoolID int64
	schoolNM string
	gradeCat string
	years    []int
}

func (e *Engine) collectSchoolYears() ([]*schoolYears, error) {
	rows, err := e.db.Query(`
		SELECT school_id, COALESCE(school_nm, ''), COALESCE(grade_cat, ''), file_year
		FROM schools
		WHERE school_id IS NOT NULL
		ORDER BY school_id, grade_cat, file_year
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query school years: %w", err)
	}
	defer rows.Close()

	byKey := make(map[string]*schoolYears)
	var order []string

	for rows.Next() {
		var id int64
		var nm, grade, fileYear string
		if err := rows.Scan(&id, &nm, &grade, &fileYear); err != nil {
			return nil, fmt.Errorf("failed to scan school year row: %w", err)
		}
		start, ok := etl.AcademicYearStart(fileYear)
		if !ok {
			continue
		}
		key := fmt.Sprintf("%d|%s", id, grade)
		sy, exists := byKey[key]
		if !exists {
			sy = &schoolYears{schoolID: id, schoolNM: nm, gradeCat: grade}
			byKey[key] = sy
			order = append(order, key)
		}
		// Earliest file gives the representative name; rows arrive sorted.
		if sy.schoolNM == "" && nm != "" {
			sy.schoolNM = nm
		}
		sy.years = append(sy.years, start)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*schoolYears, 0, len(order))
	for _, key := range order {
		sy := byKey[key]
		sort.Ints(sy.years)
		out = append(out, sy)
	}
	return out, nil
}

// ComputeFromBoundaries derives closures from the boundary series: a school
// whose last appearance is academic year Y is recorded as closing in Y+1,
// kept only when that falls before the final covered year. Replaces prior
// computed rows.
func (e *Engine) ComputeFromBoundaries() (int, error) {
	schools, err := e.collectSchoolYears()
	if err != nil {
		return 0, err
	}

	if _, err := e.db.Exec("DELETE FROM closures WHERE source = ?", SourceComputed); err != nil {
		return 0, fmt.Errorf("failed to clear computed closures: %w", err)
	}

	stmt, err := e.db.Prepare(`
		INSERT INTO closures (school_id, school_nm, grade_cat, last_open_year, closure_year, source)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare closures insert: %w", err)
	}
	defer stmt.Close()

	count := 0
	for _, sy := range schools {
		lastOpen := sy.years[len(sy.years)-1]
		closureYear := lastOpen + 1
		if closureYear >= e.finalYear {
			continue
		}
		if _, err := stmt.Exec(sy.schoolID, sy.schoolNM, sy.gradeCat, lastOpen, closureYear, SourceComputed); err != nil {
			return count, fmt.Errorf("failed to insert computed closure for %d: %w", sy.schoolID, err)
		}
		count++
	}

	fmt.Printf("Computed %d closures from the boundary series\n", count)
	return count, nil
}

// WriteOpenYears writes the wide open-years table: one row per
// (SCHOOL_ID, GRADE_CAT) with a dummy column per academic year.
func (e *Engine) WriteOpenYears(path string, firstYear, lastYear int) error {
	schools, err := e.collectSchoolYears()
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create open-years CSV: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := []string{"school_id", "school_nm", "grade_cat"}
	for y := firstYear; y <= lastYear; y++ {
		header = append(header, "open_"+strconv.Itoa(y))
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write open-years header: %w", err)
	}

	for _, sy := range schools {
		open := make(map[int]bool, len(sy.years))
		for _, y := range sy.years {
			open[y] = true
		}
		row := []string{strconv.FormatInt(sy.schoolID, 10), sy.schoolNM, sy.gradeCat}
		for y := firstYear; y <= lastYear; y++ {
			if open[y] {
				row = append(row, "1")
			} else {
				row = append(row, "0")
			}
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write open-years row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush open-years CSV: %w", err)
	}
	fmt.Printf("Wrote open-years table for %d schools to %s\n", len(schools), path)
	return nil
}
