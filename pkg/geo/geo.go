// Package geo provides the geodesic and planar geometry primitives used by
// the projection and corner-detection pipeline. All distances are meters,
// all angles degrees unless noted otherwise.
package geo

import (
	"math"
	"time"
)

// EarthRadiusM is the mean Earth radius used by the great-circle formulas.
const EarthRadiusM = 6371000.0

// Approximate meters per degree at mid latitudes, used for local planar
// projections where sub-meter accuracy is not required.
const (
	metersPerDegLat = 110540.0
	metersPerDegLon = 111320.0
)

// Point is a WGS84 coordinate. Elevation is ignored throughout.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Position is a single sample from a position source.
type Position struct {
	Point   Point     `json:"point"`
	Heading float64   `json:"heading"` // degrees, 0-360
	Speed   float64   `json:"speed"`   // m/s
	Time    time.Time `json:"time"`
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b Point) float64 {
	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	dPhi := radians(b.Lat - a.Lat)
	dLambda := radians(b.Lon - a.Lon)

	s := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return EarthRadiusM * 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
}

// Bearing returns the initial bearing from a to b in degrees, 0-360.
func Bearing(a, b Point) float64 {
	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	dLambda := radians(b.Lon - a.Lon)

	x := math.Sin(dLambda) * math.Cos(phi2)
	y := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	return math.Mod(degrees(math.Atan2(x, y))+360, 360)
}

// AngleDiff returns the smallest signed difference between two bearings,
// in the range -180..180. Positive means `to` lies clockwise of `from`.
func AngleDiff(from, to float64) float64 {
	d := math.Mod(to-from+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}

// Destination returns the point at the given distance and bearing from p.
func Destination(p Point, bearingDeg, distanceM float64) Point {
	lat1 := radians(p.Lat)
	lon1 := radians(p.Lon)
	brg := radians(bearingDeg)
	dr := distanceM / EarthRadiusM

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(dr) + math.Cos(lat1)*math.Sin(dr)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(
		math.Sin(brg)*math.Sin(dr)*math.Cos(lat1),
		math.Cos(dr)-math.Sin(lat1)*math.Sin(lat2),
	)
	return Point{Lat: degrees(lat2), Lon: degrees(lon2)}
}

// ClosestOnSegment returns the point on segment a-b closest to p and the
// parameter t in [0,1] locating it along the segment. Uses a local planar
// projection around p, which is accurate for road-scale segments.
func ClosestOnSegment(p, a, b Point) (Point, float64) {
	cosLat := math.Cos(radians(p.Lat))
	x1 := (a.Lon - p.Lon) * metersPerDegLon * cosLat
	y1 := (a.Lat - p.Lat) * metersPerDegLat
	x2 := (b.Lon - p.Lon) * metersPerDegLon * cosLat
	y2 := (b.Lat - p.Lat) * metersPerDegLat

	dx := x2 - x1
	dy := y2 - y1
	if dx == 0 && dy == 0 {
		return a, 0
	}

	t := -(x1*dx + y1*dy) / (dx*dx + dy*dy)
	t = math.Max(0, math.Min(1, t))

	return Point{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lon: a.Lon + t*(b.Lon-a.Lon),
	}, t
}

// Curvature returns the signed curvature at p2 using the three-point
// circumcircle method, in 1/meters. Positive is a left-hand turn.
// Collinear or near-degenerate triples return 0.
func Curvature(p1, p2, p3 Point) float64 {
	cosLat := math.Cos(radians(p2.Lat))
	x1 := (p1.Lon - p2.Lon) * metersPerDegLon * cosLat
	y1 := (p1.Lat - p2.Lat) * metersPerDegLat
	x3 := (p3.Lon - p2.Lon) * metersPerDegLon * cosLat
	y3 := (p3.Lat - p2.Lat) * metersPerDegLat

	// p2 is the local origin.
	area := math.Abs(x1*(0-y3)+0*(y3-y1)+x3*(y1-0)) / 2
	if area < 1e-6 {
		return 0
	}

	sa := math.Hypot(x3, y3)
	sb := math.Hypot(x1-x3, y1-y3)
	sc := math.Hypot(x1, y1)

	radius := (sa * sb * sc) / (4 * area)
	if radius < 0.1 {
		return 0
	}

	// Cross product of the entry and exit direction vectors; positive z
	// means a counterclockwise (left-hand) turn.
	cross := (0-x1)*y3 - (0-y1)*x3
	if cross > 0 {
		return 1 / radius
	}
	return -1 / radius
}

// CumulativeDistances returns the running distance along a polyline.
// The result has the same length as pts, starting at 0.
func CumulativeDistances(pts []Point) []float64 {
	if len(pts) == 0 {
		return nil
	}
	out := make([]float64, len(pts))
	for i := 1; i < len(pts); i++ {
		out[i] = out[i-1] + Haversine(pts[i-1], pts[i])
	}
	return out
}

// Interpolate returns the point a fraction t of the way from a to b.
// Linear in lat/lon, which is adequate for road-scale segments.
func Interpolate(a, b Point, t float64) Point {
	return Point{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lon: a.Lon + t*(b.Lon-a.Lon),
	}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
