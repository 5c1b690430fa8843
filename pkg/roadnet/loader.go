package roadnet

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"github.com/tarmac-rally/codriver/pkg/geo"
)

// Road classes the co-driver follows. Footways, cycleways and similar are
// never drivable and stay out of the graph.
var drivableClasses = map[string]bool{
	"motorway": true, "motorway_link": true,
	"trunk": true, "trunk_link": true,
	"primary": true, "primary_link": true,
	"secondary": true, "secondary_link": true,
	"tertiary": true, "tertiary_link": true,
	"unclassified": true, "residential": true,
	"living_street": true, "service": true,
}

type pbfWay struct {
	id     osm.WayID
	nodes  []osm.NodeID
	bridge bool
	class  string
}

// LoadPBF reads an OSM PBF extract and builds the road network. The file is
// scanned twice: once for drivable ways, once for the node coordinates those
// ways reference. Ways are split into edges at shared nodes so that every
// intersection becomes a graph node.
func LoadPBF(ctx context.Context, path string) (*Network, error) {
	ways, refCount, err := scanWays(ctx, path)
	if err != nil {
		return nil, err
	}
	coords, err := scanNodes(ctx, path, refCount)
	if err != nil {
		return nil, err
	}
	return buildGraph(ways, refCount, coords), nil
}

func scanWays(ctx context.Context, path string) ([]pbfWay, map[osm.NodeID]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("roadnet: open pbf: %w", err)
	}
	defer f.Close()

	scanner := osmpbf.New(ctx, f, runtime.GOMAXPROCS(0))
	defer scanner.Close()
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	var ways []pbfWay
	refCount := make(map[osm.NodeID]int)
	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		class := w.Tags.Find("highway")
		if !drivableClasses[class] || len(w.Nodes) < 2 {
			continue
		}
		bridge := w.Tags.Find("bridge")
		pw := pbfWay{
			id:     w.ID,
			nodes:  make([]osm.NodeID, len(w.Nodes)),
			bridge: bridge != "" && bridge != "no",
			class:  class,
		}
		for i, wn := range w.Nodes {
			pw.nodes[i] = wn.ID
			refCount[wn.ID]++
		}
		ways = append(ways, pw)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("roadnet: scan ways: %w", err)
	}
	return ways, refCount, nil
}

func scanNodes(ctx context.Context, path string, needed map[osm.NodeID]int) (map[osm.NodeID]geo.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("roadnet: open pbf: %w", err)
	}
	defer f.Close()

	scanner := osmpbf.New(ctx, f, runtime.GOMAXPROCS(0))
	defer scanner.Close()
	scanner.SkipWays = true
	scanner.SkipRelations = true

	coords := make(map[osm.NodeID]geo.Point, len(needed))
	for scanner.Scan() {
		nd, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, want := needed[nd.ID]; want {
			coords[nd.ID] = geo.Point{Lat: nd.Lat, Lon: nd.Lon}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("roadnet: scan nodes: %w", err)
	}
	return coords, nil
}

// buildGraph splits ways at shared nodes. A way node becomes a graph node
// when it terminates a way or is referenced by more than one way.
func buildGraph(ways []pbfWay, refCount map[osm.NodeID]int, coords map[osm.NodeID]geo.Point) *Network {
	var nodes []Node
	var edges []Edge
	seenNode := make(map[osm.NodeID]bool)
	nextEdge := EdgeID(1)

	addNode := func(id osm.NodeID) {
		if seenNode[id] {
			return
		}
		seenNode[id] = true
		nodes = append(nodes, Node{ID: NodeID(id), Point: coords[id]})
	}

	for _, w := range ways {
		// Drop ways with unresolved coordinates (clipped extracts).
		complete := true
		for _, nid := range w.nodes {
			if _, ok := coords[nid]; !ok {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}

		segStart := 0
		for i := 1; i < len(w.nodes); i++ {
			last := i == len(w.nodes)-1
			boundary := last || refCount[w.nodes[i]] > 1
			if !boundary {
				continue
			}
			from, to := w.nodes[segStart], w.nodes[i]
			geom := make([]geo.Point, 0, i-segStart+1)
			for _, nid := range w.nodes[segStart : i+1] {
				geom = append(geom, coords[nid])
			}
			addNode(from)
			addNode(to)
			edges = append(edges, Edge{
				ID:       nextEdge,
				From:     NodeID(from),
				To:       NodeID(to),
				Geometry: geom,
				Bridge:   w.bridge,
				Class:    w.class,
			})
			nextEdge++
			segStart = i
		}
	}
	return NewNetwork(nodes, edges)
}
