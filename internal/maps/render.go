package maps

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/cps-schoolcrime/internal/etl"
)

func pointWGS84(lon, lat float64) orb.Point {
	return orb.Point{lon, lat}
}

type mapPage struct {
	Title      string
	CenterLat  float64
	CenterLon  float64
	Boundaries template.JS
	Crimes     template.JS
	Patches    template.JS
	Years      template.JS
}

func asJS(fc *geojson.FeatureCollection) (template.JS, error) {
	if fc == nil {
		return template.JS("null"), nil
	}
	b, err := fc.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	return template.JS(b), nil
}

// YearlyMaps writes one HTML map per roster year: that year's boundaries
// styled by grade plus the matching calendar year's school crimes.
func (r *Renderer) YearlyMaps(outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create map output dir: %w", err)
	}

	years, err := r.rosterYears()
	if err != nil {
		return nil, err
	}

	var written []string
	for _, year := range years {
		boundaries, err := r.boundaryFeatures(year)
		if err != nil {
			return written, err
		}

		crimes := geojson.NewFeatureCollection()
		if start, ok := etl.AcademicYearStart(year); ok {
			// The academic year SY1213 ends in calendar 2013.
			crimes, err = r.crimeFeatures(start + 1)
			if err != nil {
				return written, err
			}
		}

		page := mapPage{
			Title:     fmt.Sprintf("School boundaries and crimes, SY%s", year),
			CenterLat: chicago[0],
			CenterLon: chicago[1],
		}
		if page.Boundaries, err = asJS(boundaries); err != nil {
			return written, err
		}
		if page.Crimes, err = asJS(crimes); err != nil {
			return written, err
		}

		path := filepath.Join(outDir, fmt.Sprintf("schools_crimes_SY%s.html", year))
		if err := renderPage(path, yearlyTemplate, page); err != nil {
			return written, err
		}
		written = append(written, path)
		fmt.Printf("Wrote %s (%d boundaries, %d crimes)\n",
			path, len(boundaries.Features), len(crimes.Features))
	}
	return written, nil
}

// SliderMap writes a single HTML map with a year slider filtering boundaries
// and crimes by academic-year start.
func (r *Renderer) SliderMap(outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create map output dir: %w", err)
	}

	boundaries, err := r.boundaryFeatures("")
	if err != nil {
		return "", err
	}
	crimes, err := r.crimeFeatures(0)
	if err != nil {
		return "", err
	}

	startSet := make(map[int]bool)
	for _, f := range boundaries.Features {
		if start, ok := f.Properties["year_start"].(int); ok {
			startSet[start] = true
		}
	}
	var starts []int
	for s := range startSet {
		starts = append(starts, s)
	}
	sort.Ints(starts)
	yearsJSON, err := json.Marshal(starts)
	if err != nil {
		return "", fmt.Errorf("failed to marshal year list: %w", err)
	}

	page := mapPage{
		Title:     "School boundaries over time",
		CenterLat: chicago[0],
		CenterLon: chicago[1],
		Years:     template.JS(yearsJSON),
	}
	if page.Boundaries, err = asJS(boundaries); err != nil {
		return "", err
	}
	if page.Crimes, err = asJS(crimes); err != nil {
		return "", err
	}

	path := filepath.Join(outDir, "schools_timeline.html")
	if err := renderPage(path, sliderTemplate, page); err != nil {
		return "", err
	}
	fmt.Printf("Wrote %s (%d boundaries, %d years)\n", path, len(boundaries.Features), len(starts))
	return path, nil
}

// TransferMaps writes one HTML map per closure year with the closed
// boundaries, the next-year receiving boundaries and the highlighted
// intersection patches.
func (r *Renderer) TransferMaps(outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create map output dir: %w", err)
	}

	rows, err := r.db.Query("SELECT DISTINCT closure_year FROM area_transfers ORDER BY closure_year")
	if err != nil {
		return nil, fmt.Errorf("failed to query transfer years: %w", err)
	}
	var closureYears []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan transfer year: %w", err)
		}
		closureYears = append(closureYears, y)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var written []string
	for _, year := range closureYears {
		patches, err := r.intersectionFeatures(year)
		if err != nil {
			return written, err
		}
		if len(patches.Features) == 0 {
			continue
		}

		page := mapPage{
			Title:     fmt.Sprintf("Area transfers, closures of %d", year),
			CenterLat: chicago[0],
			CenterLon: chicago[1],
		}
		if page.Patches, err = asJS(patches); err != nil {
			return written, err
		}

		path := filepath.Join(outDir, fmt.Sprintf("transfers_%d.html", year))
		if err := renderPage(path, transferTemplate, page); err != nil {
			return written, err
		}
		written = append(written, path)
		fmt.Printf("Wrote %s (%d patches)\n", path, len(patches.Features))
	}
	return written, nil
}

func renderPage(path string, tmpl *template.Template, page mapPage) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create map file: %w", err)
	}
	defer file.Close()

	if err := tmpl.Execute(file, page); err != nil {
		return fmt.Errorf("failed to render map template: %w", err)
	}
	return nil
}
