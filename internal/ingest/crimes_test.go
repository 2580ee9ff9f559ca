package ingest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/cps-schoolcrime/internal/db"
	"github.com/cps-schoolcrime/internal/socrata"
)

func newTestStore(t *testing.T) *db.Connection {
	t.Helper()
	conn, err := db.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestIngestCrimes(t *testing.T) {
	records := []map[string]interface{}{
		{
			"id": "1", "date": "2013-03-05T12:30:00.000", "primary_type": "BATTERY",
			"location_description": "PUBLIC HIGH SCHOOL", "arrest": true,
			"ward": "27", "year": "2013", "latitude": "41.875", "longitude": "-87.635",
		},
		{
			"id": "2", "date": "2014-06-01T08:00:00.000", "primary_type": "THEFT",
			"location_description": "STREET", "arrest": "false",
			"ward": "not-a-number", "year": "2014", "latitude": "41.88", "longitude": "-87.62",
		},
		{
			"id": "3", "date": "bad-date", "primary_type": "ASSAULT",
			"location_description": "School Yard", "year": "2015",
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, offset := 0, 0
		fmt.Sscan(r.URL.Query().Get("$limit"), &limit)
		fmt.Sscan(r.URL.Query().Get("$offset"), &offset)
		end := offset + limit
		if offset > len(records) {
			offset = len(records)
		}
		if end > len(records) {
			end = len(records)
		}
		json.NewEncoder(w).Encode(records[offset:end])
	}))
	defer server.Close()

	client := socrata.NewClient("unused", "", "", "", 5*time.Second)
	if err := client.SetBaseURL(server.URL); err != nil {
		t.Fatalf("SetBaseURL failed: %v", err)
	}

	conn := newTestStore(t)
	ing := NewIngester(conn.DB, client)

	total, err := ing.IngestCrimes("ijzp-q8t2", 2)
	if err != nil {
		t.Fatalf("IngestCrimes failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("ingested %d records, want 3", total)
	}

	// Dirty values become NULLs rather than dropped rows.
	var nullWards, nullDates int
	if err := conn.DB.QueryRow("SELECT COUNT(*) FROM crimes WHERE ward IS NULL").Scan(&nullWards); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if err := conn.DB.QueryRow("SELECT COUNT(*) FROM crimes WHERE date IS NULL").Scan(&nullDates); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if nullWards != 2 {
		t.Errorf("NULL wards = %d, want 2 (invalid and missing)", nullWards)
	}
	if nullDates != 1 {
		t.Errorf("NULL dates = %d, want 1 (unparsable)", nullDates)
	}

	var arrest int
	if err := conn.DB.QueryRow("SELECT arrest FROM crimes WHERE id = '1'").Scan(&arrest); err != nil {
		t.Fatalf("arrest scan failed: %v", err)
	}
	if arrest != 1 {
		t.Errorf("arrest for crime 1 = %d, want 1", arrest)
	}

	flagged, err := ing.FlagSchoolCrimes()
	if err != nil {
		t.Fatalf("FlagSchoolCrimes failed: %v", err)
	}
	if flagged != 2 {
		t.Errorf("flagged %d school crimes, want 2 (case-insensitive)", flagged)
	}

	var atSchool int
	if err := conn.DB.QueryRow("SELECT at_school FROM crimes WHERE id = '2'").Scan(&atSchool); err != nil {
		t.Fatalf("at_school scan failed: %v", err)
	}
	if atSchool != 0 {
		t.Error("street crime must not be flagged as at school")
	}
}
