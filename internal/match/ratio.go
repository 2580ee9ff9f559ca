package match

import (
	"sort"
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Ratio scores the similarity of two strings on a 0-100 scale. It is a
// composite of a plain Levenshtein ratio, a best-window partial ratio scaled
// by 0.9 when the strings differ a lot in length, and a token-sort ratio.
// The composite keeps short aliases scoring high against their full forms:
// Ratio("Lincoln Elem", "Lincoln Elementary School") >= 90.
//
// Deterministic given its inputs; no candidate ordering is consulted here.
func Ratio(a, b string) float64 {
	pa := processString(a)
	pb := processString(b)

	if pa == "" || pb == "" {
		return 0
	}
	if pa == pb {
		return 100
	}

	base := levRatio(pa, pb)
	tokenSort := levRatio(sortTokens(pa), sortTokens(pb))

	longer, shorter := len(pa), len(pb)
	if shorter > longer {
		longer, shorter = shorter, longer
	}
	lenRatio := float64(longer) / float64(shorter)

	score := base
	if tokenSort*0.95 > score {
		score = tokenSort * 0.95
	}
	if lenRatio > 1.5 {
		if p := partialRatio(pa, pb) * 0.9; p > score {
			score = p
		}
	}

	return score * 100
}

// levRatio is the normalized Levenshtein similarity in [0,1].
func levRatio(a, b string) float64 {
	return strutil.Similarity(a, b, metrics.NewLevenshtein())
}

// partialRatio slides a window the size of the shorter string across the
// longer one and returns the best Levenshtein ratio of any window.
func partialRatio(a, b string) float64 {
	shorter, longer := []rune(a), []rune(b)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) == 0 {
		return 0
	}

	best := 0.0
	for i := 0; i+len(shorter) <= len(longer); i++ {
		window := string(longer[i : i+len(shorter)])
		if r := levRatio(string(shorter), window); r > best {
			best = r
			if best == 1.0 {
				break
			}
		}
	}
	return best
}

// processString lowercases, strips non-alphanumeric runes and collapses
// whitespace, matching the pre-processing applied to every compared string.
func processString(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
