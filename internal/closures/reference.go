package closures

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cps-schoolcrime/internal/match"
)

// ReferenceRow is one row of the external closure reference list.
type ReferenceRow struct {
	SchoolNM   string
	GradeCat   string
	YearClosed int
}

// ReadReferenceList reads the external closure list. year_closed must parse;
// rows that do not are logged and skipped.
func ReadReferenceList(path string) ([]ReferenceRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference list: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read reference header: %w", err)
	}
	columnMap := make(map[string]int)
	for i, col := range header {
		columnMap[strings.ToLower(strings.TrimSpace(col))] = i
	}

	nameIdx, ok := findColumn(columnMap, "school_nm", "school_name", "name")
	if !ok {
		return nil, fmt.Errorf("reference list missing a school name column")
	}
	yearIdx, ok := findColumn(columnMap, "year_closed", "closure_year", "year")
	if !ok {
		return nil, fmt.Errorf("reference list missing a closure year column")
	}
	gradeIdx, _ := findColumn(columnMap, "grade_cat", "category", "grades")

	var out []ReferenceRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Printf("Error reading reference row: %v\n", err)
			continue
		}
		if nameIdx >= len(record) || yearIdx >= len(record) {
			continue
		}
		year, err := strconv.Atoi(strings.TrimSpace(record[yearIdx]))
		if err != nil {
			fmt.Printf("Skipping reference row with bad year %q\n", record[yearIdx])
			continue
		}
		row := ReferenceRow{
			SchoolNM:   strings.TrimSpace(record[nameIdx]),
			YearClosed: year,
		}
		if gradeIdx >= 0 && gradeIdx < len(record) {
			row.GradeCat = strings.TrimSpace(record[gradeIdx])
		}
		if row.SchoolNM == "" {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// allRosterYears returns every distinct boundary year code in the store.
func (e *Engine) allRosterYears() ([]string, error) {
	rows, err := e.db.Query("SELECT DISTINCT file_year FROM schools ORDER BY file_year")
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

// MatchReference fuzzy-matches the external reference list to canonical
// school IDs across every boundary roster, appends closures for IDs the
// table does not have yet, and writes the matched output for manual review.
// Matches below the name threshold are queued, not written.
func (e *Engine) MatchReference(refPath, matchedPath string) (int, error) {
	refs, err := ReadReferenceList(refPath)
	if err != nil {
		return 0, err
	}
	fmt.Printf("Read %d schools from the reference closure list\n", len(refs))

	years, err := e.allRosterYears()
	if err != nil {
		return 0, err
	}
	candidates, err := e.rosterCandidates("school_nm", years)
	if err != nil {
		return 0, err
	}

	matchedFile, err := os.Create(matchedPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create matched CSV: %w", err)
	}
	defer matchedFile.Close()
	w := csv.NewWriter(matchedFile)
	if err := w.Write([]string{"school_nm", "grade_cat", "year_closed",
		"matched_nm", "school_id", "score"}); err != nil {
		return 0, fmt.Errorf("failed to write matched header: %w", err)
	}

	stmt, err := e.db.Prepare(`
		INSERT INTO closures (school_id, school_nm, grade_cat, last_open_year, closure_year, source)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM closures WHERE school_id = ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare reference closure insert: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, ref := range refs {
		top := match.TopN(ref.SchoolNM, candidates, 3)
		if err := e.queue.RecordDecision("reference_name", ref.SchoolNM, top, e.nameThreshold); err != nil {
			return added, err
		}
		if len(top) == 0 || !top[0].Accepted(e.nameThreshold) {
			continue
		}
		best := top[0]

		grade := ref.GradeCat
		if grade == "" {
			grade = best.GradeCat
		}
		rec := []string{ref.SchoolNM, grade, strconv.Itoa(ref.YearClosed),
			best.Text, strconv.FormatInt(best.SchoolID, 10),
			strconv.FormatFloat(best.Score, 'f', 1, 64)}
		if err := w.Write(rec); err != nil {
			return added, fmt.Errorf("failed to write matched row: %w", err)
		}

		res, err := stmt.Exec(best.SchoolID, ref.SchoolNM, grade,
			ref.YearClosed-1, ref.YearClosed, SourceReference, best.SchoolID)
		if err != nil {
			return added, fmt.Errorf("failed to insert reference closure for %d: %w", best.SchoolID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return added, fmt.Errorf("failed to flush matched CSV: %w", err)
	}
	fmt.Printf("Added %d reference closures; matched output at %s\n", added, matchedPath)
	return added, nil
}

// WriteDiscrepancies writes computed-vs-reference closure-year conflicts to a
// review CSV. Conflicts are never resolved automatically.
func (e *Engine) WriteDiscrepancies(path string) (int, error) {
	rows, err := e.db.Query(`
		SELECT c.school_id, c.school_nm, c.closure_year, r.closure_year
		FROM closures c
		JOIN closures r ON r.school_id = c.school_id
		WHERE c.source = ? AND r.source = ? AND c.closure_year != r.closure_year
		ORDER BY c.school_id
	`, SourceComputed, SourceReference)
	if err != nil {
		return 0, fmt.Errorf("failed to query discrepancies: %w", err)
	}
	defer rows.Close()

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create discrepancy CSV: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"school_id", "school_nm",
		"computed_closure_year", "reference_closure_year", "corrected_closure_year"}); err != nil {
		return 0, fmt.Errorf("failed to write discrepancy header: %w", err)
	}

	count := 0
	for rows.Next() {
		var id int64
		var nm string
		var computed, reference int
		if err := rows.Scan(&id, &nm, &computed, &reference); err != nil {
			return count, fmt.Errorf("failed to scan discrepancy: %w", err)
		}
		if err := w.Write([]string{strconv.FormatInt(id, 10), nm,
			strconv.Itoa(computed), strconv.Itoa(reference), ""}); err != nil {
			return count, fmt.Errorf("failed to write discrepancy row: %w", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return count, fmt.Errorf("failed to flush discrepancy CSV: %w", err)
	}
	fmt.Printf("Wrote %d closure-year discrepancies to %s\n", count, path)
	return count, nil
}

// ApplyCorrections merges a reviewed discrepancy CSV back. A filled
// corrected_closure_year overrides every row for that school; blanks are
// left alone.
func (e *Engine) ApplyCorrections(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open corrections CSV: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read corrections header: %w", err)
	}
	columnMap := make(map[string]int)
	for i, col := range header {
		columnMap[strings.ToLower(strings.TrimSpace(col))] = i
	}
	idIdx, ok := findColumn(columnMap, "school_id")
	if !ok {
		return 0, fmt.Errorf("corrections CSV missing school_id column")
	}
	yearIdx, ok := findColumn(columnMap, "corrected_closure_year")
	if !ok {
		return 0, fmt.Errorf("corrections CSV missing corrected_closure_year column")
	}

	applied := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Printf("Error reading corrections row: %v\n", err)
			continue
		}
		if idIdx >= len(record) || yearIdx >= len(record) {
			continue
		}
		yearText := strings.TrimSpace(record[yearIdx])
		if yearText == "" {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(record[idIdx]), 10, 64)
		if err != nil {
			fmt.Printf("Skipping correction with bad school_id %q\n", record[idIdx])
			continue
		}
		year, err := strconv.Atoi(yearText)
		if err != nil {
			fmt.Printf("Skipping correction with bad year %q\n", yearText)
			continue
		}

		if _, err := e.db.Exec(`
			UPDATE closures SET closure_year = ?, last_open_year = ?
			WHERE school_id = ?
		`, year, year-1, id); err != nil {
			return applied, fmt.Errorf("failed to apply correction for %d: %w", id, err)
		}
		applied++
	}

	fmt.Printf("Applied %d closure-year corrections from %s\n", applied, path)
	return applied, nil
}
