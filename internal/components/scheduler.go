package components

import (
	"context"
	"fmt"

	"moodatlas/internal/config"
	"moodatlas/internal/countries"
	"moodatlas/internal/scheduler"
)

type SchedulerComponent struct {
	config    config.SchedulerConfig
	scheduler *scheduler.Scheduler
}

func NewSchedulerComponent(cfg config.SchedulerConfig) *SchedulerComponent {
	return &SchedulerComponent{config: cfg}
}

func (c *SchedulerComponent) Name() string {
	return SchedulerComponentName
}

func (c *SchedulerComponent) Dependencies() []string {
	return []string{}
}

func (c *SchedulerComponent) Validate() error {
	lease := config.MustDuration(c.config.LeaseDuration)
	sweep := config.MustDuration(c.config.SweepInterval)
	if sweep > lease {
		return fmt.Errorf("scheduler: sweep interval %s exceeds lease duration %s", sweep, lease)
	}
	return nil
}

func (c *SchedulerComponent) Initialize(ctx context.Context) error {
	c.scheduler = scheduler.New(scheduler.Config{
		LeaseDuration:   config.MustDuration(c.config.LeaseDuration),
		SweepInterval:   config.MustDuration(c.config.SweepInterval),
		StarvationBound: c.config.StarvationBound,
		MinInterval:     config.MustDuration(c.config.MinInterval),
		MaxInterval:     config.MustDuration(c.config.MaxInterval),
	})

	for _, country := range countries.All() {
		c.scheduler.Track(country)
	}

	go c.scheduler.Run()
	return nil
}

func (c *SchedulerComponent) Close(ctx context.Context) error {
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	return nil
}

func (c *SchedulerComponent) Scheduler() *scheduler.Scheduler {
	return c.scheduler
}
