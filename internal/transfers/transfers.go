// Package transfers computes where a closed school's attendance area went:
// for each closure year, the closed school's final boundary is overlaid with
// the boundaries of schools still operating the following year, and the
// intersection area is credited to each receiving school.
package transfers

import (
	"database/sql"
	"fmt"

	"github.com/cps-schoolcrime/internal/etl"
	"github.com/cps-schoolcrime/internal/geo"
)

// Transfer is the area one receiving school absorbed from one closed school.
type Transfer struct {
	ClosedID    int64
	ClosedNM    string
	ReceivingID int64
	ReceivingNM string
	AreaSqm     float64
	ClosureYear int
}

// Computer runs the overlay per closure year.
type Computer struct {
	db *sql.DB
}

// NewComputer creates a transfer computer.
func NewComputer(db *sql.DB) *Computer {
	return &Computer{db: db}
}

type namedBoundary struct {
	SchoolID int64
	SchoolNM string
	Boundary *geo.Boundary
}

// boundariesForYear loads projected boundaries whose academic year starts in
// the given calendar year, restricted or excluded by closed-school IDs.
func (c *Computer) boundariesForYear(year int, closedIDs map[int64]bool, closedOnly bool) ([]namedBoundary, error) {
	rows, err := c.db.Query(`
		SELECT school_id, COALESCE(school_nm, ''), file_year, geom_wkt
		FROM schools
		WHERE school_id IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query boundaries: %w", err)
	}
	defer rows.Close()

	var out []namedBoundary
	for rows.Next() {
		var nb namedBoundary
		var fileYear, wktText string
		if err := rows.Scan(&nb.SchoolID, &nb.SchoolNM, &fileYear, &wktText); err != nil {
			return nil, fmt.Errorf("failed to scan boundary: %w", err)
		}
		start, ok := etl.AcademicYearStart(fileYear)
		if !ok || start != year {
			continue
		}
		if closedOnly != closedIDs[nb.SchoolID] {
			continue
		}
		boundary, err := geo.ParseBoundary(wktText)
		if err != nil {
			continue
		}
		nb.Boundary = boundary
		out = append(out, nb)
	}
	return out, rows.Err()
}

// Compute overlays closed against surviving boundaries for every closure
// year in [firstYear, lastYear] and rewrites the area_transfers table.
func (c *Computer) Compute(firstYear, lastYear int) (int, error) {
	if _, err := c.db.Exec("DELETE FROM area_transfers"); err != nil {
		return 0, fmt.Errorf("failed to clear area_transfers: %w", err)
	}

	stmt, err := c.db.Prepare(`
		INSERT INTO area_transfers (closed_school_id, closed_school_nm, receiving_school_id, receiving_school_nm, transferred_area_sqm, closure_year)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare transfer insert: %w", err)
	}
	defer stmt.Close()

	total := 0
	for year := firstYear; year <= lastYear; year++ {
		pairs, err := c.computeYear(year)
		if err != nil {
			return total, err
		}
		for _, t := range pairs {
			if _, err := stmt.Exec(t.ClosedID, t.ClosedNM, t.ReceivingID, t.ReceivingNM, t.AreaSqm, t.ClosureYear); err != nil {
				return total, fmt.Errorf("failed to insert transfer: %w", err)
			}
		}
		total += len(pairs)
		if len(pairs) > 0 {
			fmt.Printf("Closure year %d: %d transfer pairs\n", year, len(pairs))
		}
	}

	fmt.Printf("Computed %d area transfers\n", total)
	return total, nil
}

// computeYear handles one closure year: closed schools' last-open boundaries
// against next-year boundaries of everyone else.
func (c *Computer) computeYear(closureYear int) ([]Transfer, error) {
	closedIDs := make(map[int64]bool)
	closedNames := make(map[int64]string)

	rows, err := c.db.Query(`
		SELECT school_id, COALESCE(school_nm, '') FROM closures WHERE closure_year = ?
	`, closureYear)
	if err != nil {
		return nil, fmt.Errorf("failed to query closures for %d: %w", closureYear, err)
	}
	for rows.Next() {
		var id int64
		var nm string
		if err := rows.Scan(&id, &nm); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan closure: %w", err)
		}
		closedIDs[id] = true
		closedNames[id] = nm
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(closedIDs) == 0 {
		return nil, nil
	}

	closed, err := c.boundariesForYear(closureYear-1, closedIDs, true)
	if err != nil {
		return nil, err
	}
	surviving, err := c.boundariesForYear(closureYear, closedIDs, false)
	if err != nil {
		return nil, err
	}

	var out []Transfer
	for _, cb := range closed {
		sums := make(map[int64]float64)
		names := make(map[int64]string)
		var order []int64

		for _, sb := range surviving {
			area, err := geo.IntersectionArea(cb.Boundary, sb.Boundary)
			if err != nil || area <= 0 {
				continue
			}
			if _, seen := sums[sb.SchoolID]; !seen {
				order = append(order, sb.SchoolID)
				names[sb.SchoolID] = sb.SchoolNM
			}
			sums[sb.SchoolID] += area
		}

		closedNM := cb.SchoolNM
		if closedNM == "" {
			closedNM = closedNames[cb.SchoolID]
		}
		for _, id := range order {
			out = append(out, Transfer{
				ClosedID:    cb.SchoolID,
				ClosedNM:    closedNM,
				ReceivingID: id,
				ReceivingNM: names[id],
				AreaSqm:     sums[id],
				ClosureYear: closureYear,
			})
		}
	}
	return out, nil
}

// All returns the stored transfers ordered by closure year and area.
func (c *Computer) All() ([]Transfer, error) {
	rows, err := c.db.Query(`
		SELECT closed_school_id, COALESCE(closed_school_nm, ''),
			receiving_school_id, COALESCE(receiving_school_nm, ''),
			transferred_area_sqm, closure_year
		FROM area_transfers
		ORDER BY closure_year, transferred_area_sqm DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	var out []Transfer
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.ClosedID, &t.ClosedNM, &t.ReceivingID, &t.ReceivingNM, &t.AreaSqm, &t.ClosureYear); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
