package match

import "testing"

func TestRatio(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		min  float64
		max  float64
	}{
		{
			name: "Identical Strings",
			a:    "Lincoln Elementary School",
			b:    "Lincoln Elementary School",
			min:  100,
			max:  100,
		},
		{
			name: "Case And Punctuation Ignored",
			a:    "LINCOLN elementary-school",
			b:    "Lincoln Elementary School",
			min:  100,
			max:  100,
		},
		{
			name: "Short Alias Against Full Name",
			a:    "Lincoln Elem",
			b:    "Lincoln Elementary School",
			min:  90,
			max:  100,
		},
		{
			name: "Token Order Irrelevant",
			a:    "Elementary Lincoln School",
			b:    "Lincoln Elementary School",
			min:  90,
			max:  100,
		},
		{
			name: "Unrelated Names Score Low",
			a:    "Washington High School",
			b:    "Pulaski Academy",
			min:  0,
			max:  60,
		},
		{
			name: "Empty Input",
			a:    "",
			b:    "Lincoln Elementary School",
			min:  0,
			max:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ratio(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("Ratio(%q, %q) = %.1f, want in [%.1f, %.1f]", tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}

func TestRatioSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"Lincoln Elem", "Lincoln Elementary School"},
		{"Washington HS", "George Washington High School"},
		{"Pulaski", "Pulaski Academy"},
	}
	for _, p := range pairs {
		ab := Ratio(p[0], p[1])
		ba := Ratio(p[1], p[0])
		if ab != ba {
			t.Errorf("Ratio not symmetric for %q / %q: %.2f vs %.2f", p[0], p[1], ab, ba)
		}
	}
}

func TestBestTieBreak(t *testing.T) {
	candidates := []Candidate{
		{Text: "Lincoln School", SchoolID: 1},
		{Text: "Lincoln School", SchoolID: 2},
	}
	got := Best("Lincoln School", candidates)
	if got.SchoolID != 1 {
		t.Errorf("Best tie-break picked school %d, want first-found 1", got.SchoolID)
	}
	if got.Score != 100 {
		t.Errorf("Best score = %.1f, want 100", got.Score)
	}
}

func TestBestEmptyCandidates(t *testing.T) {
	got := Best("Lincoln", nil)
	if got.SchoolID != 0 || got.Score != 0 {
		t.Errorf("Best with no candidates = %+v, want zero result", got)
	}
}

// Raising the threshold can only shrink the accepted set.
func TestAcceptanceMonotonicInThreshold(t *testing.T) {
	candidates := []Candidate{
		{Text: "Lincoln Elementary School", SchoolID: 1},
		{Text: "Washington High School", SchoolID: 2},
		{Text: "Pulaski International Academy", SchoolID: 3},
	}
	raws := []string{"Lincoln Elem", "Washington HS", "Pulaski", "Jefferson MS"}

	thresholds := []float64{0, 50, 80, 90, 95, 100}
	prev := len(raws) + 1
	for _, threshold := range thresholds {
		accepted := 0
		for _, raw := range raws {
			if Best(raw, candidates).Accepted(threshold) {
				accepted++
			}
		}
		if accepted > prev {
			t.Errorf("threshold %.0f accepted %d matches, more than a lower threshold's %d", threshold, accepted, prev)
		}
		prev = accepted
	}
}

func TestAcceptedBoundaryInclusive(t *testing.T) {
	r := Result{Score: 90}
	if !r.Accepted(90) {
		t.Error("score equal to threshold must be accepted")
	}
	if r.Accepted(90.01) {
		t.Error("score below threshold must not be accepted")
	}
}

func TestTopNOrdering(t *testing.T) {
	candidates := []Candidate{
		{Text: "Pulaski Academy", SchoolID: 1},
		{Text: "Lincoln Elementary School", SchoolID: 2},
		{Text: "Lincoln Park High School", SchoolID: 3},
	}
	got := TopN("Lincoln Elementary", candidates, 2)
	if len(got) != 2 {
		t.Fatalf("TopN returned %d results, want 2", len(got))
	}
	if got[0].SchoolID != 2 {
		t.Errorf("best candidate = school %d, want 2", got[0].SchoolID)
	}
	if got[0].Score < got[1].Score {
		t.Errorf("results not in descending score order: %.1f then %.1f", got[0].Score, got[1].Score)
	}
}
