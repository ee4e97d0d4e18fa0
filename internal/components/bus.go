package components

import (
	"context"
	"fmt"

	"moodatlas/internal/bus"
	"moodatlas/internal/config"
)

type BusComponent struct {
	config config.BusConfig
	bus    *bus.Bus
}

func NewBusComponent(cfg config.BusConfig) *BusComponent {
	return &BusComponent{config: cfg}
}

func (c *BusComponent) Name() string {
	return BusComponentName
}

func (c *BusComponent) Dependencies() []string {
	return []string{}
}

func (c *BusComponent) Validate() error {
	if c.config.QueueSize <= 0 {
		return fmt.Errorf("bus: queue size must be positive")
	}
	return nil
}

func (c *BusComponent) Initialize(ctx context.Context) error {
	c.bus = bus.New(bus.Config{
		QueueSize:      c.config.QueueSize,
		PublishTimeout: config.MustDuration(c.config.PublishTimeout),
	})
	return nil
}

func (c *BusComponent) Close(ctx context.Context) error {
	if c.bus != nil {
		c.bus.Close()
	}
	return nil
}

func (c *BusComponent) Bus() *bus.Bus {
	return c.bus
}
