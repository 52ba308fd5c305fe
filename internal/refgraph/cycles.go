package refgraph

import (
	"sort"

	"github.com/pitabwire/cardforge/model"
)

// Cycle is a closed chain of prerequisites inside one collection. Path lists
// each entity once, starting from the smallest id.
type Cycle struct {
	Collection model.Collection `json:"collection"`
	Path       []string         `json:"path"`
}

// Cycles returns the prerequisite cycles among stages and among chapters.
func (g *Graph) Cycles() []Cycle {
	var out []Cycle
	for _, c := range []model.Collection{model.Stages, model.Chapters} {
		out = append(out, g.cyclesIn(c)...)
	}
	return out
}

func (g *Graph) cyclesIn(c model.Collection) []Cycle {
	edges := make(map[string][]string)
	for _, r := range g.refs {
		if r.From == c && r.To == c && r.Resolved {
			edges[r.FromID] = append(edges[r.FromID], r.ToID)
		}
	}
	if len(edges) == 0 {
		return nil
	}

	nodes := make([]string, 0, len(edges))
	for id := range edges {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int)
	seen := make(map[string]bool)
	var stack []string
	var out []Cycle

	var visit func(string)
	visit = func(id string) {
		color[id] = grey
		stack = append(stack, id)
		for _, next := range edges[id] {
			switch color[next] {
			case white:
				visit(next)
			case grey:
				path := canonical(loopFrom(stack, next))
				key := joinKey(path)
				if !seen[key] {
					seen[key] = true
					out = append(out, Cycle{Collection: c, Path: path})
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}
	for _, id := range nodes {
		if color[id] == white {
			visit(id)
		}
	}
	return out
}

func loopFrom(stack []string, start string) []string {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == start {
			return append([]string(nil), stack[i:]...)
		}
	}
	return []string{start}
}

// canonical rotates a loop so it starts at its smallest id.
func canonical(path []string) []string {
	min := 0
	for i, id := range path {
		if id < path[min] {
			min = i
		}
	}
	return append(append([]string(nil), path[min:]...), path[:min]...)
}

func joinKey(path []string) string {
	key := ""
	for _, id := range path {
		key += id + "\x00"
	}
	return key
}
