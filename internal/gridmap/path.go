package gridmap

import (
	"container/heap"
	"math"
	"sort"
)

// Pathfind returns the shortest path (inclusive of start and end) from start
// to end within a single map, honoring the blocked set except at the start
// and explicit goal node, per spec.md S4.2. Returns nil if unreachable.
//
// Dijkstra over the 8-connected node graph with Euclidean edge weights;
// ties are broken lexicographically by nodeId for determinism.
func (m *Map) Pathfind(start, end string, blocked map[string]struct{}) []string {
	if start == end {
		if _, ok := m.Node(start); ok {
			return []string{start}
		}
		return nil
	}
	if _, ok := m.Node(start); !ok {
		return nil
	}
	if _, ok := m.Node(end); !ok {
		return nil
	}

	dist := map[string]float64{start: 0}
	prev := map[string]string{}
	visited := map[string]struct{}{}

	pq := &nodeHeap{{id: start, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(nodeDist)
		if _, done := visited[cur.id]; done {
			continue
		}
		visited[cur.id] = struct{}{}

		if cur.id == end {
			break
		}

		node, ok := m.Node(cur.id)
		if !ok {
			continue
		}

		neighbors := make([]string, 0, len(node.ConnectedTo))
		for nb := range node.ConnectedTo {
			neighbors = append(neighbors, nb)
		}
		sort.Strings(neighbors)

		for _, nbID := range neighbors {
			if nbID != start && nbID != end {
				if _, isBlocked := blocked[nbID]; isBlocked {
					continue
				}
			}
			nb, ok := m.Node(nbID)
			if !ok {
				continue
			}
			weight := euclid(node.X, node.Y, nb.X, nb.Y)
			nd := dist[cur.id] + weight
			old, seen := dist[nbID]
			if !seen || nd < old || (nd == old && less(cur.id, prev[nbID])) {
				if !seen || nd < old {
					dist[nbID] = nd
					prev[nbID] = cur.id
					heap.Push(pq, nodeDist{id: nbID, dist: nd})
				}
			}
		}
	}

	if _, ok := dist[end]; !ok {
		return nil
	}

	path := []string{end}
	cur := end
	for cur != start {
		p, ok := prev[cur]
		if !ok {
			return nil
		}
		path = append(path, p)
		cur = p
	}
	// reverse in place
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func less(a, b string) bool { return a < b }

func euclid(x1, y1, x2, y2 float64) float64 {
	dx, dy := x2-x1, y2-y1
	return math.Sqrt(dx*dx + dy*dy)
}

type nodeDist struct {
	id   string
	dist float64
}

type nodeHeap []nodeDist

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	// Deterministic tie-break by nodeId per spec.md S4.2.
	return h[i].id < h[j].id
}
func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)   { *h = append(*h, x.(nodeDist)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
