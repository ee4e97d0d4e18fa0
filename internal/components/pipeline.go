package components

import (
	"context"
	"fmt"

	"moodatlas/internal/classifier"
	"moodatlas/internal/config"
	"moodatlas/internal/pipeline"
)

// PipelineComponent owns the stage coordinator and the fetch worker
// pool. The fetcher, extractor and classifier are injected; they are the
// system's external collaborators.
type PipelineComponent struct {
	pipelineCfg config.PipelineConfig
	schedCfg    config.SchedulerConfig
	retention   string

	storage    *StorageComponent
	bus        *BusComponent
	sched      *SchedulerComponent
	aggregator *AggregatorComponent

	fetcher    pipeline.Fetcher
	extractor  pipeline.Extractor
	classifier classifier.Classifier

	coordinator *pipeline.Coordinator
	pool        *pipeline.FetchPool
}

func NewPipelineComponent(pipelineCfg config.PipelineConfig, schedCfg config.SchedulerConfig, retention string,
	storage *StorageComponent, bus *BusComponent, sched *SchedulerComponent, aggregator *AggregatorComponent,
	fetcher pipeline.Fetcher, extractor pipeline.Extractor, cls classifier.Classifier) *PipelineComponent {

	return &PipelineComponent{
		pipelineCfg: pipelineCfg,
		schedCfg:    schedCfg,
		retention:   retention,
		storage:     storage,
		bus:         bus,
		sched:       sched,
		aggregator:  aggregator,
		fetcher:     fetcher,
		extractor:   extractor,
		classifier:  cls,
	}
}

func (c *PipelineComponent) Name() string {
	return PipelineComponentName
}

func (c *PipelineComponent) Dependencies() []string {
	return []string{StorageComponentName, BusComponentName, SchedulerComponentName, AggregatorComponentName}
}

func (c *PipelineComponent) Validate() error {
	if c.extractor == nil {
		return fmt.Errorf("pipeline: extractor is required")
	}
	if c.classifier == nil {
		return fmt.Errorf("pipeline: classifier is required")
	}
	return nil
}

func (c *PipelineComponent) Initialize(ctx context.Context) error {
	store := c.storage.Store()

	c.coordinator = pipeline.New(pipeline.Config{
		MaxAttempts:    c.pipelineCfg.MaxAttempts,
		BaseBackoff:    config.MustDuration(c.pipelineCfg.BaseBackoff),
		HandlerTimeout: config.MustDuration(c.pipelineCfg.HandlerTimeout),
	}, c.bus.Bus(), store.Posts(), store.Classifications(),
		c.extractor, c.classifier, c.aggregator.Engine())
	c.coordinator.Start()

	if c.fetcher != nil {
		c.pool = pipeline.NewFetchPool(pipeline.FetchPoolConfig{
			Workers:         c.schedCfg.Workers,
			RetentionWindow: config.MustDuration(c.retention),
		}, c.sched.Scheduler(), c.fetcher, c.coordinator, store.Posts())
		c.pool.Start()
	}

	return nil
}

func (c *PipelineComponent) Close(ctx context.Context) error {
	if c.pool != nil {
		c.pool.Stop()
	}
	return nil
}

func (c *PipelineComponent) Coordinator() *pipeline.Coordinator {
	return c.coordinator
}
