package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testNode struct {
	name string
	deps []string
}

func (n *testNode) GetName() string           { return n.name }
func (n *testNode) GetDependencies() []string { return n.deps }

func nodeMap(nodes ...*testNode) map[string]Node {
	out := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		out[n.name] = n
	}
	return out
}

func TestTopologicalSortRespectsDependencies(t *testing.T) {
	order, err := TopologicalSort(nodeMap(
		&testNode{name: "storage"},
		&testNode{name: "bus"},
		&testNode{name: "aggregator", deps: []string{"storage", "bus"}},
		&testNode{name: "pipeline", deps: []string{"aggregator", "bus"}},
	))
	require.NoError(t, err)
	require.Len(t, order, 4)

	position := map[string]int{}
	for i, name := range order {
		position[name] = i
	}
	assert.Less(t, position["storage"], position["aggregator"])
	assert.Less(t, position["bus"], position["aggregator"])
	assert.Less(t, position["aggregator"], position["pipeline"])
}

func TestTopologicalSortDetectsCycle(t *testing.T) {
	_, err := TopologicalSort(nodeMap(
		&testNode{name: "a", deps: []string{"b"}},
		&testNode{name: "b", deps: []string{"a"}},
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestTopologicalSortUnknownDependency(t *testing.T) {
	_, err := TopologicalSort(nodeMap(
		&testNode{name: "a", deps: []string{"ghost"}},
	))
	assert.Error(t, err)
}
