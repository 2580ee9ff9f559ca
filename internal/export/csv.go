// Package export writes the pipeline's final artifacts: enhanced CSVs per
// output table, a dataset overview listing every produced file, and an
// optional Postgres publish for BI use.
package export

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// Exporter writes artifacts from the working store.
type Exporter struct {
	db *sql.DB
}

// NewExporter creates an exporter.
func NewExporter(db *sql.DB) *Exporter {
	return &Exporter{db: db}
}

// tableExport describes one CSV artifact.
type tableExport struct {
	FileName string
	Query    string
	Columns  []string
}

// exports are the enhanced CSV artifacts, one per output table. The closures
// export carries its match provenance in the source column.
var exports = []tableExport{
	{
		FileName: "school_closures.csv",
		Columns:  []string{"school_id", "school_nm", "grade_cat", "last_open_year", "closure_year", "source"},
		Query: `SELECT school_id, COALESCE(school_nm, ''), COALESCE(grade_cat, ''),
			last_open_year, closure_year, source
			FROM closures ORDER BY school_id`,
	},
	{
		FileName: "area_transfers.csv",
		Columns: []string{"closed_school_id", "closed_school_nm", "receiving_school_id",
			"receiving_school_nm", "transferred_area_sqm", "closure_year"},
		Query: `SELECT closed_school_id, COALESCE(closed_school_nm, ''),
			receiving_school_id, COALESCE(receiving_school_nm, ''),
			transferred_area_sqm, closure_year
			FROM area_transfers ORDER BY closure_year, transferred_area_sqm DESC`,
	},
	{
		FileName: "crime_school_matches.csv",
		Columns:  []string{"crime_id", "date", "primary_type", "es_schools", "ms_schools", "hs_schools"},
		Query: `SELECT crime_id, date, COALESCE(primary_type, ''),
			es_schools, ms_schools, hs_schools
			FROM crime_school_match ORDER BY date`,
	},
	{
		FileName: "crime_nearest_schools.csv",
		Columns: []string{"crime_id", "school_id", "school_nm", "grade_cat",
			"distance_m", "years_in_boundary", "temporal_ok"},
		Query: `SELECT crime_id, school_id, COALESCE(school_nm, ''), COALESCE(grade_cat, ''),
			distance_m, years_in_boundary, temporal_ok
			FROM crime_nearest ORDER BY crime_id`,
	},
	{
		FileName: "review_queue.csv",
		Columns:  []string{"run_id", "source", "raw_text", "candidate", "candidate_id", "score", "tie_rank", "status", "decided_by"},
		Query: `SELECT run_id, source, raw_text, COALESCE(candidate, ''),
			COALESCE(candidate_id, 0), score, tie_rank, status, decided_by
			FROM match_results ORDER BY source, raw_text, tie_rank`,
	},
}

// ExportCSVs writes every enhanced CSV artifact into outDir plus the dataset
// overview describing them.
func (e *Exporter) ExportCSVs(outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}

	type produced struct {
		FileName string
		Columns  []string
		Rows     int
	}
	var overview []produced

	for _, te := range exports {
		rows, err := e.exportTable(outDir, te)
		if err != nil {
			return err
		}
		overview = append(overview, produced{FileName: te.FileName, Columns: te.Columns, Rows: rows})
	}

	// Dataset overview: one row per produced file with its column list.
	path := filepath.Join(outDir, "dataset_overview.csv")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset overview: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"file", "rows", "columns"}); err != nil {
		return fmt.Errorf("failed to write overview header: %w", err)
	}
	for _, p := range overview {
		cols := ""
		for i, c := range p.Columns {
			if i > 0 {
				cols += "; "
			}
			cols += c
		}
		if err := w.Write([]string{p.FileName, fmt.Sprintf("%d", p.Rows), cols}); err != nil {
			return fmt.Errorf("failed to write overview row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush dataset overview: %w", err)
	}

	fmt.Printf("Exported %d CSV artifacts to %s\n", len(overview), outDir)
	return nil
}

func (e *Exporter) exportTable(outDir string, te tableExport) (int, error) {
	rows, err := e.db.Query(te.Query)
	if err != nil {
		return 0, fmt.Errorf("failed to query for %s: %w", te.FileName, err)
	}
	defer rows.Close()

	path := filepath.Join(outDir, te.FileName)
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", te.FileName, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(te.Columns); err != nil {
		return 0, fmt.Errorf("failed to write header for %s: %w", te.FileName, err)
	}

	values := make([]interface{}, len(te.Columns))
	scanners := make([]interface{}, len(te.Columns))
	for i := range values {
		scanners[i] = &values[i]
	}

	count := 0
	for rows.Next() {
		if err := rows.Scan(scanners...); err != nil {
			return count, fmt.Errorf("failed to scan row for %s: %w", te.FileName, err)
		}
		record := make([]string, len(values))
		for i, v := range values {
			record[i] = formatValue(v)
		}
		if err := w.Write(record); err != nil {
			return count, fmt.Errorf("failed to write row for %s: %w", te.FileName, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return count, fmt.Errorf("failed to flush %s: %w", te.FileName, err)
	}
	fmt.Printf("  %s: %d rows\n", te.FileName, count)
	return count, nil
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
