package closures

import "fmt"

// Finalize deduplicates the closures table to at most one row per SCHOOL_ID.
// Rows sort by closure year ascending and the first per school wins, so the
// earliest documented closure survives regardless of which signal produced
// it.
func (e *Engine) Finalize() (int, error) {
	res, err := e.db.Exec(`
		DELETE FROM closures
		WHERE rowid NOT IN (
			SELECT rowid FROM (
				SELECT rowid,
					ROW_NUMBER() OVER (PARTITION BY school_id ORDER BY closure_year ASC, rowid ASC) AS rn
				FROM closures
			)
			WHERE rn = 1
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to deduplicate closures: %w", err)
	}
	removed, _ := res.RowsAffected()

	var remaining int
	if err := e.db.QueryRow("SELECT COUNT(*) FROM closures").Scan(&remaining); err != nil {
		return 0, fmt.Errorf("failed to count closures: %w", err)
	}

	var duplicates int
	if err := e.db.QueryRow(`
		SELECT COUNT(*) FROM (
			SELECT school_id FROM closures GROUP BY school_id HAVING COUNT(*) > 1
		)
	`).Scan(&duplicates); err != nil {
		return 0, fmt.Errorf("failed to verify closure uniqueness: %w", err)
	}
	if duplicates > 0 {
		return remaining, fmt.Errorf("%d schools still have multiple closure rows", duplicates)
	}

	fmt.Printf("Finalized closures: %d records (%d duplicates removed)\n", remaining, removed)
	return remaining, nil
}

// All returns the reconciled closure records ordered by school ID.
func (e *Engine) All() ([]Closure, error) {
	rows, err := e.db.Query(`
		SELECT school_id, COALESCE(school_nm, ''), COALESCE(grade_cat, ''),
			last_open_year, closure_year, source
		FROM closures
		ORDER BY school_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query closures: %w", err)
	}
	defer rows.Close()

	var out []Closure
	for rows.Next() {
		var c Closure
		if err := rows.Scan(&c.SchoolID, &c.SchoolNM, &c.GradeCat,
			&c.LastOpenYear, &c.ClosureYear, &c.Source); err != nil {
			return nil, fmt.Errorf("failed to scan closure: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
