package projector_test

import (
	"math"
	"testing"

	"github.com/tarmac-rally/codriver/pkg/geo"
	"github.com/tarmac-rally/codriver/pkg/projector"
	"github.com/tarmac-rally/codriver/pkg/roadnet"
)

// straightEdge builds an edge from start along a bearing, with a geometry
// point every stepM meters.
func straightEdge(id roadnet.EdgeID, from, to roadnet.NodeID, start geo.Point, bearing, lengthM, stepM float64) (roadnet.Edge, geo.Point) {
	var geom []geo.Point
	for d := 0.0; d < lengthM; d += stepM {
		geom = append(geom, geo.Destination(start, bearing, d))
	}
	end := geo.Destination(start, bearing, lengthM)
	geom = append(geom, end)
	return roadnet.Edge{ID: id, From: from, To: to, Geometry: geom, Class: "residential"}, end
}

func TestProjectOffRoad(t *testing.T) {
	e, end := straightEdge(1, 1, 2, geo.Point{Lat: 51, Lon: 0}, 0, 500, 50)
	net := roadnet.NewNetwork(
		[]roadnet.Node{{ID: 1, Point: e.Geometry[0]}, {ID: 2, Point: end}},
		[]roadnet.Edge{e},
	)
	p := projector.New(net)

	path := p.Project(geo.Point{Lat: 51, Lon: 0.01}, 0, 1000)
	if !path.OffRoad() {
		t.Fatal("expected off-road path 700m from the only edge")
	}
	if len(path.Points) != 1 {
		t.Errorf("expected single point, got %d", len(path.Points))
	}
}

func TestProjectStraightRoad(t *testing.T) {
	start := geo.Point{Lat: 51, Lon: 0}
	e1, mid := straightEdge(1, 1, 2, start, 0, 400, 40)
	e2, end := straightEdge(2, 2, 3, mid, 0, 400, 40)
	net := roadnet.NewNetwork(
		[]roadnet.Node{{ID: 1, Point: start}, {ID: 2, Point: mid}, {ID: 3, Point: end}},
		[]roadnet.Edge{e1, e2},
	)
	p := projector.New(net)
	path := p.Project(start, 0, 1000)

	t.Run("continues across degree-2 node", func(t *testing.T) {
		if path.Length < 750 {
			t.Errorf("expected ~800m of road, got %f", path.Length)
		}
	})

	t.Run("no junction at a plain continuation", func(t *testing.T) {
		for _, j := range path.Junctions {
			if !j.Terminal {
				t.Errorf("unexpected through junction at %f", j.Distance)
			}
		}
	})

	t.Run("distances strictly increase", func(t *testing.T) {
		for i := 1; i < len(path.Points); i++ {
			if path.Points[i].Distance <= path.Points[i-1].Distance {
				t.Fatalf("distance not increasing at %d: %f then %f",
					i, path.Points[i-1].Distance, path.Points[i].Distance)
			}
		}
	})

	t.Run("near-zero curvature on a straight", func(t *testing.T) {
		for _, pp := range path.Points {
			if math.Abs(pp.Curvature) > 0.002 {
				t.Errorf("curvature %f at %f on a straight road", pp.Curvature, pp.Distance)
			}
		}
	})
}

func TestProjectLookaheadTruncation(t *testing.T) {
	start := geo.Point{Lat: 51, Lon: 0}
	e, end := straightEdge(1, 1, 2, start, 0, 2000, 100)
	net := roadnet.NewNetwork(
		[]roadnet.Node{{ID: 1, Point: start}, {ID: 2, Point: end}},
		[]roadnet.Edge{e},
	)
	path := projector.New(net).Project(start, 0, 500)

	if math.Abs(path.Length-500) > 1 {
		t.Errorf("expected length 500, got %f", path.Length)
	}
	last := path.Points[len(path.Points)-1]
	if math.Abs(last.Distance-500) > 1 {
		t.Errorf("expected final sample at 500, got %f", last.Distance)
	}
}

func TestProjectTerminalJunction(t *testing.T) {
	// Road runs north into node 2; the only exit turns hard east.
	start := geo.Point{Lat: 51, Lon: 0}
	e1, mid := straightEdge(1, 1, 2, start, 0, 300, 30)
	e2, end := straightEdge(2, 2, 3, mid, 90, 300, 30)
	net := roadnet.NewNetwork(
		[]roadnet.Node{{ID: 1, Point: start}, {ID: 2, Point: mid}, {ID: 3, Point: end}},
		[]roadnet.Edge{e1, e2},
	)
	path := projector.New(net).Project(start, 0, 1000)

	if len(path.Junctions) != 1 {
		t.Fatalf("expected one junction, got %d", len(path.Junctions))
	}
	j := path.Junctions[0]
	if !j.Terminal {
		t.Error("expected a terminal junction")
	}
	if j.Node != 2 {
		t.Errorf("expected junction at node 2, got %d", j.Node)
	}
	if math.Abs(j.Distance-300) > 5 {
		t.Errorf("expected junction ~300m ahead, got %f", j.Distance)
	}
	if math.Abs(path.Length-j.Distance) > 0.01 {
		t.Errorf("expected path to stop at the junction: length %f, junction %f",
			path.Length, j.Distance)
	}
}

func TestProjectDeadEnd(t *testing.T) {
	start := geo.Point{Lat: 51, Lon: 0}
	e, end := straightEdge(1, 1, 2, start, 0, 400, 40)
	net := roadnet.NewNetwork(
		[]roadnet.Node{{ID: 1, Point: start}, {ID: 2, Point: end}},
		[]roadnet.Edge{e},
	)
	path := projector.New(net).Project(start, 0, 1000)

	if len(path.Junctions) != 1 || !path.Junctions[0].Terminal {
		t.Fatalf("expected terminal junction at dead end, got %+v", path.Junctions)
	}
}

func TestProjectForkSelection(t *testing.T) {
	// Node 2 forks: one exit bears slightly right (15 deg), one hard left.
	start := geo.Point{Lat: 51, Lon: 0}
	e1, mid := straightEdge(1, 1, 2, start, 0, 300, 30)
	e2, endA := straightEdge(2, 2, 3, mid, 15, 300, 30)
	e3, endB := straightEdge(3, 2, 4, mid, 290, 300, 30)
	net := roadnet.NewNetwork(
		[]roadnet.Node{
			{ID: 1, Point: start}, {ID: 2, Point: mid},
			{ID: 3, Point: endA}, {ID: 4, Point: endB},
		},
		[]roadnet.Edge{e1, e2, e3},
	)
	path := projector.New(net).Project(start, 0, 1000)

	t.Run("takes the least-deviating exit", func(t *testing.T) {
		if path.Length < 550 {
			t.Fatalf("expected projection through the fork, length %f", path.Length)
		}
		last := path.Points[len(path.Points)-1].Point
		if geo.Haversine(last, endA) > 50 {
			t.Errorf("expected path to end near the straight-on exit, %f m away",
				geo.Haversine(last, endA))
		}
	})

	t.Run("reports a through junction", func(t *testing.T) {
		var through int
		for _, j := range path.Junctions {
			if !j.Terminal {
				through++
			}
		}
		if through != 1 {
			t.Errorf("expected one through junction, got %d", through)
		}
	})
}

func TestProjectBridgeMark(t *testing.T) {
	start := geo.Point{Lat: 51, Lon: 0}
	e1, mid := straightEdge(1, 1, 2, start, 0, 300, 30)
	e2, end := straightEdge(2, 2, 3, mid, 0, 200, 20)
	e2.Bridge = true
	net := roadnet.NewNetwork(
		[]roadnet.Node{{ID: 1, Point: start}, {ID: 2, Point: mid}, {ID: 3, Point: end}},
		[]roadnet.Edge{e1, e2},
	)
	path := projector.New(net).Project(start, 0, 1000)

	if len(path.Bridges) != 1 {
		t.Fatalf("expected one bridge mark, got %d", len(path.Bridges))
	}
	if math.Abs(path.Bridges[0].Distance-300) > 5 {
		t.Errorf("expected bridge at ~300m, got %f", path.Bridges[0].Distance)
	}
}
