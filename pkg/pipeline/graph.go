// Package pipeline orders and runs the aggregate, detect, insights and decide
// stages against a store
package pipeline

import (
	"errors"
	"fmt"

	"github.com/heimdalr/dag"
)

// Stage names
const (
	StageAggregate = "aggregate"
	StageDetect    = "detect"
	StageInsights  = "insights"
	StageDecide    = "decide"
)

// ErrUnknownStage is returned for a stage name that is not part of the graph
var ErrUnknownStage = errors.New("unknown stage")

// stageDependencies lists every stage, in declaration order, with the stages
// whose output it reads
//
//nolint:gochecknoglobals // Read-only stage table
var stageDependencies = []struct {
	name      string
	dependsOn []string
}{
	{name: StageAggregate},
	{name: StageDetect, dependsOn: []string{StageAggregate}},
	{name: StageInsights, dependsOn: []string{StageAggregate, StageDetect}},
	{name: StageDecide, dependsOn: []string{StageAggregate, StageDetect, StageInsights}},
}

// Graph is the stage dependency graph
type Graph struct {
	dag   *dag.DAG
	names []string
}

// NewGraph builds the stage graph
func NewGraph() (*Graph, error) {
	g := &Graph{dag: dag.NewDAG()}

	for _, s := range stageDependencies {
		if err := g.dag.AddVertexByID(s.name, s.name); err != nil {
			return nil, fmt.Errorf("failed to add stage %s: %w", s.name, err)
		}

		g.names = append(g.names, s.name)
	}

	for _, s := range stageDependencies {
		for _, dep := range s.dependsOn {
			if err := g.dag.AddEdge(dep, s.name); err != nil {
				return nil, fmt.Errorf("failed to add edge %s -> %s: %w", dep, s.name, err)
			}
		}
	}

	return g, nil
}

// Stages returns every stage in dependency order
func (g *Graph) Stages() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)

	return out
}

// Order returns the requested stages, deduplicated, in an order where every
// stage runs after the requested stages it depends on. No stage means all
// stages.
func (g *Graph) Order(requested ...string) ([]string, error) {
	if len(requested) == 0 {
		return g.Stages(), nil
	}

	want := make(map[string]bool, len(requested))

	for _, name := range requested {
		if _, err := g.dag.GetVertex(name); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStage, name)
		}

		want[name] = true
	}

	done := make(map[string]bool, len(want))
	out := make([]string, 0, len(want))

	for len(out) < len(want) {
		progressed := false

		for _, name := range g.names {
			if !want[name] || done[name] {
				continue
			}

			parents, err := g.dag.GetParents(name)
			if err != nil {
				return nil, err
			}

			ready := true

			for parent := range parents {
				if want[parent] && !done[parent] {
					ready = false
					break
				}
			}

			if ready {
				done[name] = true
				out = append(out, name)
				progressed = true
			}
		}

		if !progressed {
			return nil, fmt.Errorf("stage graph has a cycle among %v", requested)
		}
	}

	return out, nil
}

// Downstream returns the given stages together with every stage that reads
// their output, in dependency order
func (g *Graph) Downstream(stages ...string) ([]string, error) {
	all := make([]string, 0, len(g.names))

	for _, name := range stages {
		descendants, err := g.dag.GetDescendants(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStage, name)
		}

		all = append(all, name)
		for id := range descendants {
			all = append(all, id)
		}
	}

	return g.Order(all...)
}

// DependsOn returns the stages whose output the named stage reads, in
// dependency order
func (g *Graph) DependsOn(name string) ([]string, error) {
	parents, err := g.dag.GetParents(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}

	deps := make([]string, 0, len(parents))
	for id := range parents {
		deps = append(deps, id)
	}

	if len(deps) == 0 {
		return deps, nil
	}

	return g.Order(deps...)
}
