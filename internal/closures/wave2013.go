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

// wave2013Years are the boundary rosters the announced closure list is
// matched against: the school year of the announcement and the one after.
var wave2013Years = []string{"1213", "1314"}

// WaveList is one row of the announced 2013 closure list.
type WaveList struct {
	SchoolNM string
	Address  string
}

// ReadWaveList reads the announced closure list. The name column is
// required; the address column is optional per row.
func ReadWaveList(path string) ([]WaveList, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wave list: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read wave list header: %w", err)
	}
	columnMap := make(map[string]int)
	for i, col := range header {
		columnMap[strings.ToLower(strings.TrimSpace(col))] = i
	}

	nameIdx, ok := findColumn(columnMap, "school_nm", "school_name", "name", "school")
	if !ok {
		return nil, fmt.Errorf("wave list missing a school name column")
	}
	addrIdx, _ := findColumn(columnMap, "school_add", "address", "addr")

	var out []WaveList
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Printf("Error reading wave list row: %v\n", err)
			continue
		}
		row := WaveList{}
		if nameIdx < len(record) {
			row.SchoolNM = strings.TrimSpace(record[nameIdx])
		}
		if addrIdx >= 0 && addrIdx < len(record) {
			row.Address = strings.TrimSpace(record[addrIdx])
		}
		if row.SchoolNM == "" {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func findColumn(columnMap map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if idx, ok := columnMap[n]; ok {
			return idx, true
		}
	}
	return -1, false
}

// rosterCandidates loads fuzzy-match candidates from the boundary rosters of
// the given year codes. column is school_nm or school_add.
func (e *Engine) rosterCandidates(column string, years []string) ([]match.Candidate, error) {
	placeholders := make([]string, len(years))
	args := make([]interface{}, len(years))
	for i, y := range years {
		placeholders[i] = "?"
		args[i] = y
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT %s, school_id, COALESCE(grade_cat, '')
		FROM schools
		WHERE %s IS NOT NULL AND school_id IS NOT NULL
		  AND file_year IN (%s)
	`, column, column, strings.Join(placeholders, ", "))

	rows, err := e.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query roster candidates: %w", err)
	}
	defer rows.Close()

	var out []match.Candidate
	for rows.Next() {
		var c match.Candidate
		if err := rows.Scan(&c.Text, &c.SchoolID, &c.GradeCat); err != nil {
			return nil, fmt.Errorf("failed to scan roster candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MatchWave2013 reconciles the announced 2013 closure list against the
// 1213/1314 boundary rosters. Names matching below 100 are written to a
// review CSV with three candidates each; address matches clearing the
// address threshold add closures for schools the boundary series missed,
// with the wave's fixed years (last open 2012, closed 2013).
func (e *Engine) MatchWave2013(listPath, nameReviewPath string) (int, error) {
	list, err := ReadWaveList(listPath)
	if err != nil {
		return 0, err
	}
	fmt.Printf("Read %d schools from the announced closure list\n", len(list))

	nameCandidates, err := e.rosterCandidates("school_nm", wave2013Years)
	if err != nil {
		return 0, err
	}
	addrCandidates, err := e.rosterCandidates("school_add", wave2013Years)
	if err != nil {
		return 0, err
	}

	reviewFile, err := os.Create(nameReviewPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create name review CSV: %w", err)
	}
	defer reviewFile.Close()
	w := csv.NewWriter(reviewFile)
	if err := w.Write([]string{"raw_text",
		"match1", "score1", "id1",
		"match2", "score2", "id2",
		"match3", "score3", "id3"}); err != nil {
		return 0, fmt.Errorf("failed to write name review header: %w", err)
	}

	imperfect := 0
	for _, row := range list {
		top := match.TopN(row.SchoolNM, nameCandidates, 3)
		if err := e.queue.RecordDecision("wave2013_name", row.SchoolNM, top, e.addressThreshold); err != nil {
			return 0, err
		}
		if len(top) > 0 && top[0].Score < 100 {
			rec := []string{row.SchoolNM}
			for i := 0; i < 3; i++ {
				if i < len(top) {
					rec = append(rec, top[i].Text,
						strconv.FormatFloat(top[i].Score, 'f', 1, 64),
						strconv.FormatInt(top[i].SchoolID, 10))
				} else {
					rec = append(rec, "", "", "")
				}
			}
			if err := w.Write(rec); err != nil {
				return 0, fmt.Errorf("failed to write name review row: %w", err)
			}
			imperfect++
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("failed to flush name review CSV: %w", err)
	}
	fmt.Printf("Wrote %d imperfect name matches to %s\n", imperfect, nameReviewPath)

	// Address pass: catch schools the boundary series never dropped.
	stmt, err := e.db.Prepare(`
		INSERT INTO closures (school_id, school_nm, grade_cat, last_open_year, closure_year, source)
		SELECT ?, ?, ?, 2012, 2013, ?
		WHERE NOT EXISTS (SELECT 1 FROM closures WHERE school_id = ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare wave closure insert: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, row := range list {
		if row.Address == "" {
			continue
		}
		top := match.TopN(row.Address, addrCandidates, 3)
		if err := e.queue.RecordDecision("wave2013_address", row.Address, top, e.addressThreshold); err != nil {
			return 0, err
		}
		if len(top) == 0 || !top[0].Accepted(e.addressThreshold) {
			continue
		}
		best := top[0]
		res, err := stmt.Exec(best.SchoolID, row.SchoolNM, best.GradeCat, SourceWave2013, best.SchoolID)
		if err != nil {
			return added, fmt.Errorf("failed to insert wave closure for %d: %w", best.SchoolID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	fmt.Printf("Added %d wave-2013 closures via address matching\n", added)
	return added, nil
}
