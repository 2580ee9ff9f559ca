package review

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// RunInteractive walks a reviewer through the pending items of a source at
// the terminal. Commands: 1-3 accept that candidate, r reject, s skip,
// q quit.
func (q *Queue) RunInteractive(source, reviewer string, in io.Reader, batchSize int) error {
	fmt.Println("=== School Match Interactive Review ===")
	if reviewer == "" {
		reviewer = "system_user"
	}
	reader := bufio.NewReader(in)
	totalReviewed := 0

	for {
		items, err := q.PendingItems(source, batchSize)
		if err != nil {
			return fmt.Errorf("failed to get review items: %w", err)
		}
		if len(items) == 0 {
			fmt.Println("No more items requiring review.")
			break
		}

		fmt.Printf("Found %d items requiring review.\n\n", len(items))
		skipped := 0

		for i, item := range items {
			fmt.Printf("=== Item %d of %d ===\n", i+1, len(items))
			fmt.Printf("Raw: %s\n", item.RawText)
			for j, c := range item.Candidates {
				fmt.Printf("  [%d] %s (score %.1f, id %d)\n", j+1, c.Candidate, c.Score, c.CandidateID)
			}
			fmt.Printf("Accept [1-%d], (r)eject, (s)kip, (q)uit: ", len(item.Candidates))

			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				fmt.Printf("\nInput closed. Total reviewed: %d\n", totalReviewed)
				return nil
			}
			choice := strings.ToLower(strings.TrimSpace(line))

			switch {
			case choice == "q":
				fmt.Printf("\nReview session ended. Total reviewed: %d\n", totalReviewed)
				return nil
			case choice == "s", choice == "":
				skipped++
				continue
			case choice == "r":
				if err := q.Resolve(source, item.RawText, "", reviewer, "rejected interactively"); err != nil {
					fmt.Printf("Error recording rejection: %v\n", err)
					continue
				}
				totalReviewed++
				fmt.Println("Rejected.")
			default:
				n, err := strconv.Atoi(choice)
				if err != nil || n < 1 || n > len(item.Candidates) {
					fmt.Println("Unrecognised choice, skipping.")
					skipped++
					continue
				}
				c := item.Candidates[n-1]
				if err := q.Resolve(source, item.RawText, c.Candidate, reviewer, "accepted interactively"); err != nil {
					fmt.Printf("Error recording decision: %v\n", err)
					continue
				}
				totalReviewed++
				fmt.Printf("Confirmed: %s\n", c.Candidate)
			}
		}

		if skipped == len(items) {
			fmt.Println("All remaining items skipped.")
			break
		}
	}

	fmt.Printf("\nReview session complete. Total items reviewed: %d\n", totalReviewed)
	return nil
}
