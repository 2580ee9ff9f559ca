package etl

import (
	"regexp"
	"strconv"
)

// renameMap collapses the column names used across ten-plus years of CPS
// boundary files into one canonical schema. Unmapped columns pass through.
var renameMap = map[string]string{
	"BoundaryGr": "BOUNDARYGR",
	"School_NM":  "SCHOOL_NM",
	"SchoolID":   "SCHOOL_ID",
	"Grade_Cat":  "GRADE_CAT",
	"SchoolAddr": "SCHOOL_ADD",
	"SchoolName": "SCHOOL_NM",
	"SCHOOLID":   "SCHOOL_ID",
	"SCHOOL_Nam": "SCHOOL_NM",
}

// NormalizeColumns applies the rename map to a CSV header. Applying it twice
// yields the same header as applying it once: every target name is already
// canonical and never appears as a key.
func NormalizeColumns(header []string) []string {
	out := make([]string, len(header))
	for i, col := range header {
		if canonical, ok := renameMap[col]; ok {
			out[i] = canonical
		} else {
			out[i] = col
		}
	}
	return out
}

var (
	reSchoolYear = regexp.MustCompile(`SY(\d{4})`)
	reAnyYear    = regexp.MustCompile(`(\d{4})`)
)

// FileYear extracts the 4-digit academic-year code from a boundary filename,
// e.g. "Chicago Public Schools - Elementary School Attendance Boundaries
// SY1314.csv" -> "1314". It prefers the code after the SY marker and falls
// back to the first 4-digit run. Empty when neither is present.
func FileYear(basename string) string {
	if m := reSchoolYear.FindStringSubmatch(basename); m != nil {
		return m[1]
	}
	if m := reAnyYear.FindStringSubmatch(basename); m != nil {
		return m[1]
	}
	return ""
}

// AcademicYearStart converts a 4-digit year code to the calendar year the
// school year starts in: "1213" -> 2012.
func AcademicYearStart(fileYear string) (int, bool) {
	if len(fileYear) != 4 {
		return 0, false
	}
	prefix, err := strconv.Atoi(fileYear[:2])
	if err != nil {
		return 0, false
	}
	return 2000 + prefix, true
}

// YearSuffixMatches reports whether a crime's 2-digit calendar-year suffix
// matches the end of a boundary's year code: a 2013 crime ("13") matches the
// "1213" boundary.
func YearSuffixMatches(fileYear, suffix string) bool {
	return len(fileYear) >= 2 && len(suffix) == 2 && fileYear[len(fileYear)-2:] == suffix
}
