package components

import (
	"context"
	"fmt"
	"log"

	"moodatlas/internal/graph"
)

const (
	StorageComponentName    = "storage"
	BusComponentName        = "bus"
	SchedulerComponentName  = "scheduler"
	AggregatorComponentName = "aggregator"
	PipelineComponentName   = "pipeline"
	ServerComponentName     = "server"
)

// IComponent is one unit of the service lifecycle. Components declare
// their dependencies by name; the registry initializes them in
// dependency order and closes them in reverse.
type IComponent interface {
	Name() string
	Dependencies() []string
	Validate() error
	Initialize(ctx context.Context) error
	Close(ctx context.Context) error
}

type Registry struct {
	components map[string]IComponent
	order      []string
}

func NewRegistry() *Registry {
	return &Registry{
		components: make(map[string]IComponent),
	}
}

func (r *Registry) Register(component IComponent) error {
	name := component.Name()
	if _, exists := r.components[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}
	r.components[name] = component
	return nil
}

func (r *Registry) Get(name string) IComponent {
	component, exists := r.components[name]
	if !exists {
		panic(fmt.Sprintf("component %s not found", name))
	}
	return component
}

// InitializeAll validates every component, then initializes them in
// topological dependency order. A single failure aborts startup.
func (r *Registry) InitializeAll(ctx context.Context) error {
	nodes := make(map[string]graph.Node)
	for name, component := range r.components {
		nodes[name] = &componentNode{component: component}
	}

	order, err := graph.TopologicalSort(nodes)
	if err != nil {
		return err
	}

	for _, name := range order {
		if err := r.components[name].Validate(); err != nil {
			return fmt.Errorf("component %s validation failed: %w", name, err)
		}
	}

	for _, name := range order {
		if err := r.components[name].Initialize(ctx); err != nil {
			return fmt.Errorf("component %s initialization failed: %w", name, err)
		}
		log.Printf("Registry: component %s initialized", name)
	}

	r.order = order
	return nil
}

// CloseAll shuts components down in reverse initialization order. Close
// errors are logged, not propagated, so one bad component cannot block
// the rest of the shutdown.
func (r *Registry) CloseAll(ctx context.Context) error {
	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if err := r.components[name].Close(ctx); err != nil {
			log.Printf("Registry: error closing component %s: %v", name, err)
		}
	}
	return nil
}

type componentNode struct {
	component IComponent
}

func (n *componentNode) GetName() string {
	return n.component.Name()
}

func (n *componentNode) GetDependencies() []string {
	return n.component.Dependencies()
}
