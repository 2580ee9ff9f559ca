// Package ingest streams the Chicago crime dataset into the working store in
// offset/limit pages, casting the portal's string fields to typed columns.
// Dirty values become NULLs; a failed page fetch aborts the run.
package ingest

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/cps-schoolcrime/internal/socrata"
)

// Ingester pulls crime pages from the portal and writes the crimes table.
type Ingester struct {
	db     *sql.DB
	client *socrata.Client
}

// NewIngester creates a crime ingester.
func NewIngester(db *sql.DB, client *socrata.Client) *Ingester {
	return &Ingester{db: db, client: client}
}

// IngestCrimes replaces the crimes table with a fresh pull of the resource.
// Pagination stops when a page returns fewer rows than the batch size.
func (ing *Ingester) IngestCrimes(resource string, batchSize int) (int, error) {
	if _, err := ing.db.Exec("DELETE FROM crimes"); err != nil {
		return 0, fmt.Errorf("failed to clear crimes table: %w", err)
	}

	stmt, err := ing.db.Prepare(`
		INSERT OR REPLACE INTO crimes (
			id, case_number, date, primary_type, description, location_description,
			arrest, fbi_code, iucr, beat, ward, year, latitude, longitude
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare crimes insert: %w", err)
	}
	defer stmt.Close()

	total := 0
	offset := 0
	page := 0

	for {
		records, err := ing.client.GetCrimes(resource, batchSize, offset)
		if err != nil {
			return total, fmt.Errorf("failed to fetch page at offset %d: %w", offset, err)
		}
		if len(records) == 0 {
			fmt.Printf("No more rows after offset %d. Done.\n", offset)
			break
		}

		inserted := 0
		for _, rec := range records {
			if rec.ID == "" {
				continue
			}
			if err := insertCrime(stmt, rec); err != nil {
				fmt.Printf("Error inserting crime %s: %v\n", rec.ID, err)
				continue
			}
			inserted++
		}

		total += inserted
		fmt.Printf("Page %d: fetched %d rows (offset %d), inserted %d\n",
			page, len(records), offset, inserted)

		offset += batchSize
		page++

		if len(records) < batchSize {
			fmt.Printf("Final page had %d rows. Streaming complete.\n", len(records))
			break
		}
	}

	fmt.Printf("Ingested %d crime records\n", total)
	return total, nil
}

// FlagSchoolCrimes marks crimes whose location description mentions a school.
// Downstream spatial stages read only flagged rows.
func (ing *Ingester) FlagSchoolCrimes() (int, error) {
	_, err := ing.db.Exec(`
		UPDATE crimes
		SET at_school = CASE
			WHEN location_description IS NOT NULL
			 AND instr(lower(location_description), 'school') > 0 THEN 1
			ELSE 0
		END
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to flag school crimes: %w", err)
	}

	var count int
	if err := ing.db.QueryRow("SELECT COUNT(*) FROM crimes WHERE at_school = 1").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count school crimes: %w", err)
	}
	fmt.Printf("Flagged %d crimes at school locations\n", count)
	return count, nil
}

func insertCrime(stmt *sql.Stmt, rec socrata.CrimeRecord) error {
	_, err := stmt.Exec(
		rec.ID,
		nullIfEmpty(rec.CaseNumber),
		parseNullableTime(rec.Date),
		nullIfEmpty(rec.PrimaryType),
		nullIfEmpty(rec.Description),
		nullIfEmpty(rec.LocationDescription),
		triBoolValue(rec.Arrest),
		nullIfEmpty(rec.FBICode),
		nullIfEmpty(rec.IUCR),
		parseNullableInt(rec.Beat),
		parseNullableInt(rec.Ward),
		parseNullableInt(rec.Year),
		parseNullableFloat(rec.Latitude),
		parseNullableFloat(rec.Longitude),
	)
	return err
}

// crimeTimeLayouts cover the portal's floating timestamp with and without
// fractional seconds.
var crimeTimeLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

func parseNullableTime(s string) interface{} {
	if s == "" {
		return nil
	}
	for _, layout := range crimeTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return nil
}

func triBoolValue(t socrata.TriBool) interface{} {
	if !t.Known {
		return nil
	}
	if t.Value {
		return 1
	}
	return 0
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
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return nil
}

func parseNullableFloat(s string) interface{} {
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return nil
}
