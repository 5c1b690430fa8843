// Package roadnet models the road-network graph the co-driver reads from.
// A Network is immutable once built and safe for concurrent readers: the
// control loop queries it every tick without synchronization.
package roadnet

import (
	"sort"

	"github.com/tarmac-rally/codriver/pkg/geo"
)

// NodeID identifies a graph node (an endpoint or intersection).
type NodeID int64

// EdgeID identifies a directed-agnostic road segment between two nodes.
type EdgeID int64

// Node is a point where edges meet. Degree 1 is a dead end, degree 2 a
// plain continuation, degree >=3 a junction.
type Node struct {
	ID    NodeID
	Point geo.Point
	Edges []EdgeID
}

// Edge is a road segment with its full polyline geometry. Geometry always
// has at least two points; Geometry[0] sits at From and the last point at To.
type Edge struct {
	ID       EdgeID
	From, To NodeID
	Geometry []geo.Point
	Bridge   bool
	Class    string
}

// Network is the queryable road graph. Construct with NewNetwork or one of
// the loaders; never mutate after construction.
type Network struct {
	nodes map[NodeID]*Node
	edges map[EdgeID]*Edge
	index *cellIndex
}

// NewNetwork builds a network from node and edge records, wiring the
// node->edge incidence lists and the spatial index. The input slices are
// copied; callers may reuse them.
func NewNetwork(nodes []Node, edges []Edge) *Network {
	n := &Network{
		nodes: make(map[NodeID]*Node, len(nodes)),
		edges: make(map[EdgeID]*Edge, len(edges)),
	}
	for i := range nodes {
		nd := nodes[i]
		nd.Edges = append([]EdgeID(nil), nd.Edges...)
		n.nodes[nd.ID] = &nd
	}
	for i := range edges {
		e := edges[i]
		e.Geometry = append([]geo.Point(nil), e.Geometry...)
		n.edges[e.ID] = &e
		for _, nid := range []NodeID{e.From, e.To} {
			if nd, ok := n.nodes[nid]; ok && !containsEdge(nd.Edges, e.ID) {
				nd.Edges = append(nd.Edges, e.ID)
			}
		}
	}
	// Deterministic incidence order regardless of input order.
	for _, nd := range n.nodes {
		sort.Slice(nd.Edges, func(i, j int) bool { return nd.Edges[i] < nd.Edges[j] })
	}
	n.index = newCellIndex(n.edges)
	return n
}

// Node returns the node with the given ID, or nil.
func (n *Network) Node(id NodeID) *Node { return n.nodes[id] }

// Edge returns the edge with the given ID, or nil.
func (n *Network) Edge(id EdgeID) *Edge { return n.edges[id] }

// EdgesAt returns the IDs of edges incident to a node, sorted ascending.
// The returned slice must not be modified.
func (n *Network) EdgesAt(id NodeID) []EdgeID {
	nd := n.nodes[id]
	if nd == nil {
		return nil
	}
	return nd.Edges
}

// Degree returns the number of edges incident to a node.
func (n *Network) Degree(id NodeID) int { return len(n.EdgesAt(id)) }

// NodeCount returns the number of nodes in the network.
func (n *Network) NodeCount() int { return len(n.nodes) }

// EdgeCount returns the number of edges in the network.
func (n *Network) EdgeCount() int { return len(n.edges) }

// Snap describes the result of projecting a position onto the network.
type Snap struct {
	Edge     EdgeID
	Segment  int       // index into Edge.Geometry of the segment start
	Point    geo.Point // snapped point on the segment
	T        float64   // parameter along the segment, 0..1
	Distance float64   // meters from the query point
}

// NearestEdge finds the closest edge within radius meters of p.
// Returns false when no edge geometry lies within the radius.
func (n *Network) NearestEdge(p geo.Point, radiusM float64) (Snap, bool) {
	best := Snap{Distance: radiusM}
	found := false
	for _, eid := range n.index.candidates(p, radiusM) {
		e := n.edges[eid]
		for i := 0; i < len(e.Geometry)-1; i++ {
			pt, t := geo.ClosestOnSegment(p, e.Geometry[i], e.Geometry[i+1])
			d := geo.Haversine(p, pt)
			if d < best.Distance || (d == best.Distance && found && eid < best.Edge) {
				best = Snap{Edge: eid, Segment: i, Point: pt, T: t, Distance: d}
				found = true
			}
		}
	}
	return best, found
}

// nodesSnapshot and edgesSnapshot expose stable, sorted copies for
// serialization. Exported accessors keep the maps private.
func (n *Network) nodesSnapshot() []Node {
	out := make([]Node, 0, len(n.nodes))
	for _, nd := range n.nodes {
		out = append(out, *nd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (n *Network) edgesSnapshot() []Edge {
	out := make([]Edge, 0, len(n.edges))
	for _, e := range n.edges {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func containsEdge(ids []EdgeID, id EdgeID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
