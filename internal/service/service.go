package service

import (
	"context"
	"fmt"

	"moodatlas/internal/classifier"
	"moodatlas/internal/components"
	"moodatlas/internal/config"
	"moodatlas/internal/pipeline"
)

// Collaborators are the external integrations the pipeline runs against.
// Fetcher may be nil to run the service without ingestion.
type Collaborators struct {
	Fetcher    pipeline.Fetcher
	Extractor  pipeline.Extractor
	Classifier classifier.Classifier
}

// Service is the assembled component graph for one process.
type Service struct {
	name     string
	registry *components.Registry
}

func Build(cfg *config.Config, collab Collaborators) (*Service, error) {
	registry := components.NewRegistry()

	storageComp := components.NewStorageComponent(cfg.Storage)
	busComp := components.NewBusComponent(cfg.Bus)
	schedComp := components.NewSchedulerComponent(cfg.Scheduler)
	aggComp := components.NewAggregatorComponent(cfg.Aggregator, storageComp, busComp)
	pipelineComp := components.NewPipelineComponent(cfg.Pipeline, cfg.Scheduler, cfg.Storage.Retention,
		storageComp, busComp, schedComp, aggComp,
		collab.Fetcher, collab.Extractor, collab.Classifier)
	serverComp := components.NewServerComponent(cfg.Server, cfg.Aggregator.CacheTTL, aggComp, schedComp)

	for _, component := range []components.IComponent{
		storageComp, busComp, schedComp, aggComp, pipelineComp, serverComp,
	} {
		if err := registry.Register(component); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", component.Name(), err)
		}
	}

	return &Service{
		name:     cfg.Service.Name,
		registry: registry,
	}, nil
}

func (s *Service) Name() string {
	return s.name
}

func (s *Service) Start(ctx context.Context) error {
	return s.registry.InitializeAll(ctx)
}

func (s *Service) Stop(ctx context.Context) error {
	return s.registry.CloseAll(ctx)
}
