package roadnet

import (
	"math"

	"github.com/tarmac-rally/codriver/pkg/geo"
)

// Cell size in degrees, roughly 550m of latitude. Edges are indexed into
// every cell their segments touch, so a radius query only scans nearby cells.
const cellSizeDeg = 0.005

type cellKey struct {
	row, col int32
}

type cellIndex struct {
	cells map[cellKey][]EdgeID
}

func cellOf(p geo.Point) cellKey {
	return cellKey{
		row: int32(math.Floor(p.Lat / cellSizeDeg)),
		col: int32(math.Floor(p.Lon / cellSizeDeg)),
	}
}

func newCellIndex(edges map[EdgeID]*Edge) *cellIndex {
	idx := &cellIndex{cells: make(map[cellKey][]EdgeID)}
	for id, e := range edges {
		seen := make(map[cellKey]bool)
		for i := 0; i < len(e.Geometry)-1; i++ {
			a, b := e.Geometry[i], e.Geometry[i+1]
			lo := cellOf(geo.Point{Lat: math.Min(a.Lat, b.Lat), Lon: math.Min(a.Lon, b.Lon)})
			hi := cellOf(geo.Point{Lat: math.Max(a.Lat, b.Lat), Lon: math.Max(a.Lon, b.Lon)})
			for r := lo.row; r <= hi.row; r++ {
				for c := lo.col; c <= hi.col; c++ {
					k := cellKey{r, c}
					if !seen[k] {
						seen[k] = true
						idx.cells[k] = append(idx.cells[k], id)
					}
				}
			}
		}
	}
	return idx
}

// candidates returns the IDs of all edges indexed in cells overlapping a
// radius around p. Callers still verify exact distances.
func (idx *cellIndex) candidates(p geo.Point, radiusM float64) []EdgeID {
	dLat := radiusM / 110540.0
	dLon := radiusM / (111320.0 * math.Max(0.01, math.Cos(p.Lat*math.Pi/180)))

	lo := cellOf(geo.Point{Lat: p.Lat - dLat, Lon: p.Lon - dLon})
	hi := cellOf(geo.Point{Lat: p.Lat + dLat, Lon: p.Lon + dLon})

	var out []EdgeID
	seen := make(map[EdgeID]bool)
	for r := lo.row; r <= hi.row; r++ {
		for c := lo.col; c <= hi.col; c++ {
			for _, id := range idx.cells[cellKey{r, c}] {
				if !seen[id] {
					seen[id] = true
					out = append(out, id)
				}
			}
		}
	}
	return out
}
