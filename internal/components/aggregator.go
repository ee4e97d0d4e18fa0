package components

import (
	"context"

	"moodatlas/internal/aggregate"
	"moodatlas/internal/config"
)

type AggregatorComponent struct {
	config  config.AggregatorConfig
	storage *StorageComponent
	bus     *BusComponent
	engine  *aggregate.Engine
}

func NewAggregatorComponent(cfg config.AggregatorConfig, storage *StorageComponent, bus *BusComponent) *AggregatorComponent {
	return &AggregatorComponent{
		config:  cfg,
		storage: storage,
		bus:     bus,
	}
}

func (c *AggregatorComponent) Name() string {
	return AggregatorComponentName
}

func (c *AggregatorComponent) Dependencies() []string {
	return []string{StorageComponentName, BusComponentName}
}

func (c *AggregatorComponent) Validate() error {
	return nil
}

func (c *AggregatorComponent) Initialize(ctx context.Context) error {
	store := c.storage.Store()
	c.engine = aggregate.New(aggregate.Config{
		MinIntensitySupport: c.config.MinIntensitySupport,
		RetentionWindow:     config.MustDuration(c.config.RetentionWindow),
	}, c.bus.Bus(), store.Classifications(), store.Aggregates())

	if err := c.engine.Rehydrate(ctx); err != nil {
		return err
	}
	return nil
}

func (c *AggregatorComponent) Close(ctx context.Context) error {
	return nil
}

func (c *AggregatorComponent) Engine() *aggregate.Engine {
	return c.engine
}
