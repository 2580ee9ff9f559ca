package review

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ExportCSV writes the pending items of a source to a review CSV. Each row
// carries up to three ranked candidates so the reviewer sees context.
func (q *Queue) ExportCSV(source, path string) (int, error) {
	items, err := q.PendingItems(source, 1<<30)
	if err != nil {
		return 0, err
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create review CSV: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := []string{"raw_text",
		"match1", "score1", "id1",
		"match2", "score2", "id2",
		"match3", "score3", "id3",
		"accepted_match"}
	if err := w.Write(header); err != nil {
		return 0, fmt.Errorf("failed to write review header: %w", err)
	}

	for _, item := range items {
		row := []string{item.RawText}
		for i := 0; i < 3; i++ {
			if i < len(item.Candidates) {
				c := item.Candidates[i]
				row = append(row, c.Candidate,
					strconv.FormatFloat(c.Score, 'f', 1, 64),
					strconv.FormatInt(c.CandidateID, 10))
			} else {
				row = append(row, "", "", "")
			}
		}
		row = append(row, "")
		if err := w.Write(row); err != nil {
			return 0, fmt.Errorf("failed to write review row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("failed to flush review CSV: %w", err)
	}
	fmt.Printf("Wrote %d review items to %s\n", len(items), path)
	return len(items), nil
}

// ImportCorrections reads a reviewed CSV back. The accepted_match column
// holds the reviewer's choice: a candidate string confirms it, "reject"
// rejects all candidates, blank leaves the item pending.
func (q *Queue) ImportCorrections(source, path, reviewer string) (int, error) {
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
	rawIdx, ok := columnMap["raw_text"]
	if !ok {
		return 0, fmt.Errorf("corrections CSV missing raw_text column")
	}
	acceptIdx, ok := columnMap["accepted_match"]
	if !ok {
		return 0, fmt.Errorf("corrections CSV missing accepted_match column")
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
		if rawIdx >= len(record) || acceptIdx >= len(record) {
			continue
		}
		raw := strings.TrimSpace(record[rawIdx])
		accepted := strings.TrimSpace(record[acceptIdx])
		if raw == "" || accepted == "" {
			continue
		}

		candidate := accepted
		if strings.EqualFold(accepted, "reject") {
			candidate = ""
		}
		if err := q.Resolve(source, raw, candidate, reviewer, "csv correction"); err != nil {
			fmt.Printf("Error applying correction for %q: %v\n", raw, err)
			continue
		}
		applied++
	}

	fmt.Printf("Applied %d corrections from %s\n", applied, path)
	return applied, nil
}
