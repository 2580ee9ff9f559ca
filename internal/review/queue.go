// Package review tracks every fuzzy-match decision the pipeline makes. Each
// decision is a row in match_results with a status; low-confidence matches go
// to a human reviewer via CSV round-trip or an interactive terminal session.
package review

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/cps-schoolcrime/internal/match"
)

// Decision statuses. A record is born auto_accepted or needs_review; humans
// move it to human_confirmed or rejected.
const (
	StatusAutoAccepted   = "auto_accepted"
	StatusNeedsReview    = "needs_review"
	StatusHumanConfirmed = "human_confirmed"
	StatusRejected       = "rejected"
)

// Record is one pending decision: a raw string, the candidate it was scored
// against and where the decision stands.
type Record struct {
	ResultID    int64
	RunID       string
	Source      string
	RawText     string
	Candidate   string
	CandidateID int64
	Score       float64
	TieRank     int
	Status      string
	DecidedBy   string
	Notes       string
}

// Queue writes and reads pending decisions.
type Queue struct {
	db    *sql.DB
	runID string
}

// NewQueue creates a decision queue with a fresh run ID.
func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db, runID: uuid.New().String()}
}

// RunID returns the identifier stamped on every record this queue writes.
func (q *Queue) RunID() string {
	return q.runID
}

// RecordDecision stores the outcome of one fuzzy match. The best candidate is
// recorded at tie_rank 1; for needs_review decisions the runners-up follow at
// ranks 2 and 3 so the review export can show alternatives.
func (q *Queue) RecordDecision(source, raw string, results []match.Result, threshold float64) error {
	if len(results) == 0 {
		return nil
	}

	status := StatusNeedsReview
	if results[0].Accepted(threshold) {
		status = StatusAutoAccepted
	}

	stmt, err := q.db.Prepare(`
		INSERT INTO match_results (run_id, source, raw_text, candidate, candidate_id, score, tie_rank, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare match_results insert: %w", err)
	}
	defer stmt.Close()

	keep := 1
	if status == StatusNeedsReview {
		keep = 3
	}
	for i, r := range results {
		if i >= keep {
			break
		}
		if _, err := stmt.Exec(q.runID, source, raw, r.Text, r.SchoolID, r.Score, i+1, status); err != nil {
			return fmt.Errorf("failed to insert match result: %w", err)
		}
	}
	return nil
}

// PendingItems returns the raw texts awaiting review for a source, each with
// its ranked candidates.
func (q *Queue) PendingItems(source string, limit int) ([]Item, error) {
	rows, err := q.db.Query(`
		SELECT result_id, raw_text, candidate, candidate_id, score, tie_rank
		FROM match_results
		WHERE source = ? AND status = ? AND raw_text IN (
			SELECT raw_text FROM match_results
			WHERE source = ? AND status = ?
			GROUP BY raw_text ORDER BY raw_text LIMIT ?
		)
		ORDER BY raw_text, tie_rank
	`, source, StatusNeedsReview, source, StatusNeedsReview, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending items: %w", err)
	}
	defer rows.Close()

	var items []Item
	byRaw := make(map[string]int)

	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ResultID, &rec.RawText, &rec.Candidate, &rec.CandidateID, &rec.Score, &rec.TieRank); err != nil {
			return nil, fmt.Errorf("failed to scan pending item: %w", err)
		}
		idx, ok := byRaw[rec.RawText]
		if !ok {
			if len(items) >= limit {
				continue
			}
			items = append(items, Item{RawText: rec.RawText})
			idx = len(items) - 1
			byRaw[rec.RawText] = idx
		}
		items[idx].Candidates = append(items[idx].Candidates, rec)
	}
	return items, rows.Err()
}

// Item is one raw text under review with its ranked candidates.
type Item struct {
	RawText    string
	Candidates []Record
}

// Resolve marks every pending row for a raw text, confirming the chosen
// candidate and rejecting the rest. An empty candidate rejects them all.
// Only rows still at needs_review are touched; decisions from earlier
// sessions stand.
func (q *Queue) Resolve(source, raw, candidate, reviewer, notes string) error {
	if reviewer == "" {
		reviewer = "system_user"
	}

	if candidate != "" {
		res, err := q.db.Exec(`
			UPDATE match_results
			SET status = ?, decided_by = ?, notes = ?
			WHERE source = ? AND raw_text = ? AND candidate = ? AND status = ?
		`, StatusHumanConfirmed, reviewer, notes, source, raw, candidate, StatusNeedsReview)
		if err != nil {
			return fmt.Errorf("failed to confirm candidate: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("no pending row matched candidate %q", candidate)
		}
	}

	if _, err := q.db.Exec(`
		UPDATE match_results
		SET status = ?, decided_by = ?, notes = ?
		WHERE source = ? AND raw_text = ? AND status = ?
	`, StatusRejected, reviewer, notes, source, raw, StatusNeedsReview); err != nil {
		return fmt.Errorf("failed to reject pending rows: %w", err)
	}
	return nil
}

// Confirmed returns the human-confirmed candidate for each raw text of a
// source. Corrections override automatic decisions downstream.
func (q *Queue) Confirmed(source string) (map[string]Record, error) {
	rows, err := q.db.Query(`
		SELECT result_id, raw_text, candidate, candidate_id, score
		FROM match_results
		WHERE source = ? AND status = ?
	`, source, StatusHumanConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to query confirmed decisions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Record)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ResultID, &rec.RawText, &rec.Candidate, &rec.CandidateID, &rec.Score); err != nil {
			return nil, fmt.Errorf("failed to scan confirmed decision: %w", err)
		}
		rec.Status = StatusHumanConfirmed
		out[rec.RawText] = rec
	}
	return out, rows.Err()
}

// Stats prints a per-source, per-status breakdown of the decision table.
func (q *Queue) Stats() error {
	rows, err := q.db.Query(`
		SELECT source, status, COUNT(*)
		FROM match_results
		WHERE tie_rank = 1
		GROUP BY source, status
		ORDER BY source, status
	`)
	if err != nil {
		return fmt.Errorf("failed to query review stats: %w", err)
	}
	defer rows.Close()

	fmt.Println("=== Review Queue Statistics ===")
	for rows.Next() {
		var source, status string
		var count int
		if err := rows.Scan(&source, &status, &count); err != nil {
			return fmt.Errorf("failed to scan stats row: %w", err)
		}
		fmt.Printf("  %-24s %-16s %d\n", source, status, count)
	}
	return rows.Err()
}
