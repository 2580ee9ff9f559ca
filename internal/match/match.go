// Package match resolves free-text school names and addresses to canonical
// records by fuzzy similarity. The matcher is pure: given the same raw
// string, candidate set and threshold it always produces the same result.
// Ties on score go to the first-found candidate.
package match

import "sort"

// Candidate is a canonical string (school name or address) with the school it
// belongs to.
type Candidate struct {
	Text     string
	SchoolID int64
	GradeCat string
}

// Result is a scored pairing of a raw string with a canonical candidate.
// Score is always recorded, even for rejected matches, so review files can
// show how close a failed match came.
type Result struct {
	Raw      string
	Text     string
	SchoolID int64
	GradeCat string
	Score    float64
}

// Accepted reports whether the result clears the threshold. The boundary is
// inclusive: score >= threshold accepts.
func (r Result) Accepted(threshold float64) bool {
	return r.Score >= threshold
}

// Best returns the highest-scoring candidate for raw. On equal scores the
// earlier candidate wins. A zero Result is returned for an empty candidate
// set.
func Best(raw string, candidates []Candidate) Result {
	best := Result{Raw: raw}
	for i, c := range candidates {
		score := Ratio(raw, c.Text)
		if i == 0 || score > best.Score {
			best.Text = c.Text
			best.SchoolID = c.SchoolID
			best.GradeCat = c.GradeCat
			best.Score = score
		}
	}
	return best
}

// TopN returns the n best-scoring candidates for raw, ordered by descending
// score with first-found order preserved on ties. Used to give reviewers
// context around a failed match.
func TopN(raw string, candidates []Candidate, n int) []Result {
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, Result{
			Raw:      raw,
			Text:     c.Text,
			SchoolID: c.SchoolID,
			GradeCat: c.GradeCat,
			Score:    Ratio(raw, c.Text),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if n < len(results) {
		results = results[:n]
	}
	return results
}
