package db

// schema creates the working-store tables. Stages overwrite their own tables
// on re-run, except closures which is only ever appended to for SCHOOL_IDs
// not already present.
const schema = `
CREATE TABLE IF NOT EXISTS crimes (
	id                   TEXT PRIMARY KEY,
	case_number          TEXT,
	date                 TIMESTAMP,
	primary_type         TEXT,
	description          TEXT,
	location_description TEXT,
	arrest               INTEGER,
	fbi_code             TEXT,
	iucr                 TEXT,
	beat                 INTEGER,
	ward                 INTEGER,
	year                 INTEGER,
	latitude             REAL,
	longitude            REAL,
	at_school            INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS crimes_at_school_idx ON crimes (at_school);
CREATE INDEX IF NOT EXISTS crimes_year_idx ON crimes (year);

CREATE TABLE IF NOT EXISTS schools (
	row_id      INTEGER PRIMARY KEY AUTOINCREMENT,
	school_id   INTEGER,
	school_nm   TEXT,
	school_add  TEXT,
	grade_cat   TEXT,
	boundary_gr TEXT,
	file_year   TEXT NOT NULL,
	geom_wkt    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS schools_id_idx ON schools (school_id);
CREATE INDEX IF NOT EXISTS schools_year_idx ON schools (file_year);

CREATE TABLE IF NOT EXISTS closures (
	school_id      INTEGER NOT NULL,
	school_nm      TEXT,
	grade_cat      TEXT,
	last_open_year INTEGER NOT NULL,
	closure_year   INTEGER NOT NULL,
	source         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS closures_school_idx ON closures (school_id);

CREATE TABLE IF NOT EXISTS match_results (
	result_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	source       TEXT NOT NULL,
	raw_text     TEXT NOT NULL,
	candidate    TEXT,
	candidate_id INTEGER,
	score        REAL NOT NULL,
	tie_rank     INTEGER NOT NULL DEFAULT 1,
	status       TEXT NOT NULL,
	decided_by   TEXT NOT NULL DEFAULT 'system',
	notes        TEXT,
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS match_results_status_idx ON match_results (status);
CREATE INDEX IF NOT EXISTS match_results_source_idx ON match_results (source);

CREATE TABLE IF NOT EXISTS crime_school_match (
	crime_id     TEXT PRIMARY KEY,
	date         TIMESTAMP,
	primary_type TEXT,
	es_schools   TEXT NOT NULL,
	ms_schools   TEXT NOT NULL,
	hs_schools   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS crime_nearest (
	crime_id          TEXT PRIMARY KEY,
	school_id         INTEGER,
	school_nm         TEXT,
	grade_cat         TEXT,
	distance_m        REAL,
	years_in_boundary TEXT NOT NULL DEFAULT '[]',
	temporal_ok       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS area_transfers (
	closed_school_id     INTEGER NOT NULL,
	closed_school_nm     TEXT,
	receiving_school_id  INTEGER NOT NULL,
	receiving_school_nm  TEXT,
	transferred_area_sqm REAL NOT NULL,
	closure_year         INTEGER NOT NULL
);
`
