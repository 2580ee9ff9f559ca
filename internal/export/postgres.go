package export

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// warehouseSchema creates the publish target tables. Dropped and recreated
// on every publish; the warehouse is a read-only mirror.
const warehouseSchema = `
DROP TABLE IF EXISTS schools;
DROP TABLE IF EXISTS closures;
DROP TABLE IF EXISTS area_transfers;

CREATE TABLE schools (
	school_id BIGINT,
	school_nm TEXT,
	school_add TEXT,
	grade_cat TEXT,
	file_year TEXT,
	geom_wkt TEXT
);

CREATE TABLE closures (
	school_id BIGINT,
	school_nm TEXT,
	grade_cat TEXT,
	last_open_year INT,
	closure_year INT,
	source TEXT
);

CREATE TABLE area_transfers (
	closed_school_id BIGINT,
	closed_school_nm TEXT,
	receiving_school_id BIGINT,
	receiving_school_nm TEXT,
	transferred_area_sqm DOUBLE PRECISION,
	closure_year INT
);
`

// PublishPostgres mirrors the schools, closures and area_transfers tables
// into a Postgres warehouse for BI queries.
func (e *Exporter) PublishPostgres(connStr string) error {
	pg, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to open warehouse connection: %w", err)
	}
	defer pg.Close()

	if err := pg.Ping(); err != nil {
		return fmt.Errorf("failed to reach warehouse: %w", err)
	}
	if _, err := pg.Exec(warehouseSchema); err != nil {
		return fmt.Errorf("failed to create warehouse tables: %w", err)
	}

	if err := e.copyTable(pg, "schools",
		`SELECT school_id, school_nm, school_add, grade_cat, file_year, geom_wkt FROM schools`,
		`INSERT INTO schools (school_id, school_nm, school_add, grade_cat, file_year, geom_wkt)
		 VALUES ($1, $2, $3, $4, $5, $6)`, 6); err != nil {
		return err
	}
	if err := e.copyTable(pg, "closures",
		`SELECT school_id, school_nm, grade_cat, last_open_year, closure_year, source FROM closures`,
		`INSERT INTO closures (school_id, school_nm, grade_cat, last_open_year, closure_year, source)
		 VALUES ($1, $2, $3, $4, $5, $6)`, 6); err != nil {
		return err
	}
	if err := e.copyTable(pg, "area_transfers",
		`SELECT closed_school_id, closed_school_nm, receiving_school_id, receiving_school_nm,
		 transferred_area_sqm, closure_year FROM area_transfers`,
		`INSERT INTO area_transfers (closed_school_id, closed_school_nm, receiving_school_id,
		 receiving_school_nm, transferred_area_sqm, closure_year)
		 VALUES ($1, $2, $3, $4, $5, $6)`, 6); err != nil {
		return err
	}

	fmt.Println("Warehouse publish complete")
	return nil
}

// copyTable streams rows from the working store into the warehouse inside
// one transaction.
func (e *Exporter) copyTable(pg *sql.DB, name, selectQuery, insertQuery string, cols int) error {
	rows, err := e.db.Query(selectQuery)
	if err != nil {
		return fmt.Errorf("failed to read %s for publish: %w", name, err)
	}
	defer rows.Close()

	tx, err := pg.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin warehouse tx: %w", err)
	}
	stmt, err := tx.Prepare(insertQuery)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare %s insert: %w", name, err)
	}

	values := make([]interface{}, cols)
	scanners := make([]interface{}, cols)
	for i := range values {
		scanners[i] = &values[i]
	}

	count := 0
	for rows.Next() {
		if err := rows.Scan(scanners...); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("failed to scan %s row: %w", name, err)
		}
		if _, err := stmt.Exec(values...); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("failed to insert %s row: %w", name, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		stmt.Close()
		tx.Rollback()
		return err
	}

	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s publish: %w", name, err)
	}
	fmt.Printf("  published %d rows to %s\n", count, name)
	return nil
}
