// Package algorithm holds offline graph computations over the indexed
// domain graph.
package algorithm

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/openwebindex/platform/pkg/hyperloglog"
	"github.com/openwebindex/platform/pkg/logger"
	"github.com/openwebindex/platform/pkg/metrics"
)

// maxRounds caps the ball radius; paths longer than this contribute nothing
// measurable to harmonic centrality on web graphs.
const maxRounds = 40

// Graph is a directed graph over 64-bit node identifiers, stored as
// in-neighbor adjacency: Incoming[v] lists the nodes with an edge into v.
type Graph struct {
	Nodes    []uint64
	Incoming map[uint64][]uint64
}

// NewGraph builds a Graph from directed edges source to target.
func NewGraph(edges func(yield func(source, target uint64))) *Graph {
	g := &Graph{Incoming: make(map[uint64][]uint64)}
	seen := make(map[uint64]struct{})
	add := func(node uint64) {
		if _, ok := seen[node]; !ok {
			seen[node] = struct{}{}
			g.Nodes = append(g.Nodes, node)
		}
	}
	edges(func(source, target uint64) {
		add(source)
		add(target)
		g.Incoming[target] = append(g.Incoming[target], source)
	})
	return g
}

// HarmonicCentrality runs the HyperBall approximation of harmonic
// centrality: each node carries a cardinality sketch of the set of nodes
// within distance t, and the per-round growth of that set contributes
// 1/t per newly reached node. Rounds synchronize on a barrier; each worker
// owns a disjoint slice of nodes so writes never race. Sketches make the
// result approximate but keep memory linear in the node count.
func HarmonicCentrality(ctx context.Context, graph *Graph, threads int, m *metrics.Metrics) (map[uint64]float64, error) {
	log := logger.WithComponent("hyperball")
	if threads <= 0 {
		threads = 1
	}
	n := len(graph.Nodes)
	if n == 0 {
		return map[uint64]float64{}, nil
	}

	position := make(map[uint64]int, n)
	for i, node := range graph.Nodes {
		position[node] = i
	}

	current := make([]*hyperloglog.HyperLogLog, n)
	next := make([]*hyperloglog.HyperLogLog, n)
	harmonic := make([]float64, n)
	for i, node := range graph.Nodes {
		current[i] = hyperloglog.New()
		current[i].Insert(node)
	}

	for t := 1; ; t++ {
		if t > maxRounds {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var changed atomic.Bool
		g, _ := errgroup.WithContext(ctx)
		chunk := (n + threads - 1) / threads
		for start := 0; start < n; start += chunk {
			start := start
			end := start + chunk
			if end > n {
				end = n
			}
			g.Go(func() error {
				round(graph, position, current, next, harmonic, start, end, t, &changed)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		current, next = next, current

		if m != nil {
			m.CentralityRounds.Inc()
		}
		if !changed.Load() {
			log.Info("balls converged", "round", t)
			break
		}
		logRound(log, t, n)
	}

	result := make(map[uint64]float64, n)
	for i, node := range graph.Nodes {
		result[node] = harmonic[i]
	}
	return result, nil
}

// round grows the ball of every node in [start, end): the next sketch is
// the union of the node's own sketch and its in-neighbors' sketches, and
// the cardinality growth is credited at distance t.
func round(graph *Graph, position map[uint64]int,
	current, next []*hyperloglog.HyperLogLog, harmonic []float64,
	start, end, t int, changed *atomic.Bool) {

	for i := start; i < end; i++ {
		node := graph.Nodes[i]
		ball := current[i].Clone()
		for _, neighbor := range graph.Incoming[node] {
			ball.Union(current[position[neighbor]])
		}
		next[i] = ball

		before := current[i].Count()
		after := ball.Count()
		if after > before {
			harmonic[i] += float64(after-before) / float64(t)
			changed.Store(true)
		}
	}
}

func logRound(log *slog.Logger, t, n int) {
	if t%5 == 0 {
		log.Info("round complete", "round", t, "nodes", n)
	}
}
