package graph

import "fmt"

// Node is anything with a name and a list of named dependencies.
type Node interface {
	GetName() string
	GetDependencies() []string
}

// TopologicalSort orders nodes so every node comes after its dependencies.
// Kahn's algorithm; a leftover node means a dependency cycle.
func TopologicalSort(nodes map[string]Node) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))

	for name, node := range nodes {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, dep := range node.GetDependencies() {
			if _, exists := nodes[dep]; !exists {
				return nil, fmt.Errorf("node %s depends on %s which does not exist", name, dep)
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	ready := make([]string, 0, len(nodes))
	for name, degree := range indegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		for _, next := range dependents[name] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, fmt.Errorf("cycle detected: resolved %d of %d nodes", len(order), len(nodes))
	}

	return order, nil
}
