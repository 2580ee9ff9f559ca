// Package geo wraps the geometry operations the pipeline needs: WKT decoding,
// WGS84 <-> Web Mercator projection, point-in-polygon tests, centroids and
// polygon overlay areas. Boundary polygons are kept in both coordinate
// systems; containment and distance are always evaluated in Mercator meters.
package geo

import (
	"fmt"

	"github.com/engelsjk/polygol"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

// Boundary is a school boundary polygon in WGS84 with its projected twin.
type Boundary struct {
	WGS84    orb.Geometry
	Mercator orb.Geometry
}

// ParseBoundary decodes a WKT polygon or multipolygon in WGS84 lat/lon.
func ParseBoundary(wktText string) (*Boundary, error) {
	g, err := wkt.Unmarshal(wktText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse WKT geometry: %w", err)
	}

	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return nil, fmt.Errorf("unsupported geometry type %s, want polygon", g.GeoJSONType())
	}

	merc := project.Geometry(orb.Clone(g), project.WGS84.ToMercator)
	return &Boundary{WGS84: g, Mercator: merc}, nil
}

// PointMercator projects a WGS84 lon/lat point to Web Mercator.
func PointMercator(lon, lat float64) orb.Point {
	return project.Point(orb.Point{lon, lat}, project.WGS84.ToMercator)
}

// Contains reports whether the projected point falls within the boundary.
func (b *Boundary) Contains(p orb.Point) bool {
	switch g := b.Mercator.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	}
	return false
}

// Centroid returns the boundary centroid in Mercator coordinates.
func (b *Boundary) Centroid() orb.Point {
	c, _ := planar.CentroidArea(b.Mercator)
	return c
}

// CentroidWGS84 returns the boundary centroid as WGS84 lon/lat.
func (b *Boundary) CentroidWGS84() orb.Point {
	return project.Point(b.Centroid(), project.Mercator.ToWGS84)
}

// Area returns the boundary area in square meters (Mercator plane).
func (b *Boundary) Area() float64 {
	return planar.Area(b.Mercator)
}

// Distance returns the planar distance between two Mercator points in meters.
func Distance(a, b orb.Point) float64 {
	return planar.Distance(a, b)
}

// IntersectionArea computes the overlay area shared by two boundaries in
// square meters. Degenerate results from the clipper count as zero.
func IntersectionArea(a, b *Boundary) (float64, error) {
	patch, err := Intersection(a, b)
	if err != nil {
		return 0, err
	}
	if patch == nil {
		return 0, nil
	}
	return planar.Area(patch), nil
}

// Intersection returns the shared region of two boundaries as a Mercator
// multipolygon, or nil when they do not overlap.
func Intersection(a, b *Boundary) (orb.MultiPolygon, error) {
	result, err := polygol.Intersection(toPolygolGeom(a.Mercator), toPolygolGeom(b.Mercator))
	if err != nil {
		return nil, fmt.Errorf("polygon overlay failed: %w", err)
	}

	mp := fromPolygolGeom(result)
	if len(mp) == 0 {
		return nil, nil
	}
	return mp, nil
}

// toPolygolGeom converts an orb polygon/multipolygon to polygol's
// multipolygon representation.
func toPolygolGeom(g orb.Geometry) polygol.Geom {
	var mp orb.MultiPolygon
	switch v := g.(type) {
	case orb.Polygon:
		mp = orb.MultiPolygon{v}
	case orb.MultiPolygon:
		mp = v
	default:
		return nil
	}

	out := make(polygol.Geom, 0, len(mp))
	for _, poly := range mp {
		rings := make([][][]float64, 0, len(poly))
		for _, ring := range poly {
			coords := make([][]float64, 0, len(ring))
			for _, pt := range ring {
				coords = append(coords, []float64{pt[0], pt[1]})
			}
			rings = append(rings, coords)
		}
		out = append(out, rings)
	}
	return out
}

// fromPolygolGeom converts back to an orb multipolygon, dropping degenerate
// rings with fewer than four coordinates.
func fromPolygolGeom(g polygol.Geom) orb.MultiPolygon {
	var mp orb.MultiPolygon
	for _, rings := range g {
		var poly orb.Polygon
		for _, ring := range rings {
			if len(ring) < 4 {
				continue
			}
			r := make(orb.Ring, 0, len(ring))
			for _, pt := range ring {
				if len(pt) < 2 {
					continue
				}
				r = append(r, orb.Point{pt[0], pt[1]})
			}
			poly = append(poly, r)
		}
		if len(poly) > 0 {
			mp = append(mp, poly)
		}
	}
	return mp
}
