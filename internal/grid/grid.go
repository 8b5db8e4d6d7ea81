// Package grid turns a geographic bounding box into the deterministic sequence
// of sample points searched during discovery.
package grid

import (
	"math"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

const (
	// DefaultSpacing is the distance in degrees between adjacent points.
	DefaultSpacing = 0.5
	// SearchRadiusMeters is the location-bias radius used around each point.
	SearchRadiusMeters = 35000
	// precision is the number of decimals a coordinate keeps as identity.
	precision = 4
)

// BoundingBox is an immutable latitude/longitude rectangle.
type BoundingBox struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MinLng float64 `json:"min_lng" yaml:"min_lng"`
	MaxLng float64 `json:"max_lng" yaml:"max_lng"`
}

// Validate checks that the box is well formed.
func (b BoundingBox) Validate() error {
	if b.MinLat > b.MaxLat {
		return eris.Errorf("grid: min_lat %v exceeds max_lat %v", b.MinLat, b.MaxLat)
	}
	if b.MinLng > b.MaxLng {
		return eris.Errorf("grid: min_lng %v exceeds max_lng %v", b.MinLng, b.MaxLng)
	}
	return nil
}

// bounds returns the rounded box as go-geom bounds (X = lng, Y = lat).
func (b BoundingBox) bounds() *geom.Bounds {
	return geom.NewBounds(geom.XY).Set(Round(b.MinLng), Round(b.MinLat), Round(b.MaxLng), Round(b.MaxLat))
}

// Contains reports whether p lies inside the box or on its border, comparing
// rounded coordinates.
func (b BoundingBox) Contains(p Point) bool {
	p = p.Rounded()
	return b.bounds().OverlapsPoint(geom.XY, geom.Coord{p.Lng, p.Lat})
}

// Point is a sample coordinate. Equality is by rounded value.
type Point struct {
	Lat float64
	Lng float64
}

// NewPoint returns a point rounded to the identity precision.
func NewPoint(lat, lng float64) Point {
	return Point{Lat: Round(lat), Lng: Round(lng)}
}

// Rounded returns p with both coordinates rounded.
func (p Point) Rounded() Point { return NewPoint(p.Lat, p.Lng) }

// Key returns the identity key of the point, e.g. "37.5,-111.5".
func (p Point) Key() string {
	p = p.Rounded()
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}

// Round rounds v to the identity precision.
func Round(v float64) float64 {
	scale := math.Pow(10, precision)
	r := math.Round(v*scale) / scale
	if r == 0 {
		return 0 // normalise -0
	}
	return r
}

// Generate returns the row-major sequence of points covering box at the given
// spacing: latitude outer, longitude inner, both stepping from the minimum up
// to and including the maximum.
func Generate(box BoundingBox, spacing float64) ([]Point, error) {
	if spacing <= 0 {
		return nil, eris.New("grid: spacing must be positive")
	}
	if err := box.Validate(); err != nil {
		return nil, err
	}

	var points []Point
	for i := 0; ; i++ {
		lat := Round(box.MinLat + float64(i)*spacing)
		if lat > Round(box.MaxLat) {
			break
		}
		for j := 0; ; j++ {
			p := NewPoint(lat, box.MinLng+float64(j)*spacing)
			if !box.Contains(p) {
				break
			}
			points = append(points, p)
		}
	}
	return points, nil
}

// Remaining returns the points of all not present in done, preserving order.
func Remaining(all []Point, done map[string]struct{}) []Point {
	out := make([]Point, 0, len(all))
	for _, p := range all {
		if _, ok := done[p.Key()]; !ok {
			out = append(out, p)
		}
	}
	return out
}
