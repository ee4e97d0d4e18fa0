package components

import (
	"context"

	"moodatlas/internal/config"
	"moodatlas/internal/server"
)

type ServerComponent struct {
	serverCfg  config.ServerConfig
	cacheTTL   string
	aggregator *AggregatorComponent
	sched      *SchedulerComponent
	server     *server.Server
}

func NewServerComponent(serverCfg config.ServerConfig, cacheTTL string,
	aggregator *AggregatorComponent, sched *SchedulerComponent) *ServerComponent {

	return &ServerComponent{
		serverCfg:  serverCfg,
		cacheTTL:   cacheTTL,
		aggregator: aggregator,
		sched:      sched,
	}
}

func (c *ServerComponent) Name() string {
	return ServerComponentName
}

func (c *ServerComponent) Dependencies() []string {
	return []string{AggregatorComponentName, SchedulerComponentName}
}

func (c *ServerComponent) Validate() error {
	return nil
}

func (c *ServerComponent) Initialize(ctx context.Context) error {
	c.server = server.New(server.Config{
		Port:     c.serverCfg.Port,
		CacheTTL: config.MustDuration(c.cacheTTL),
	}, c.aggregator.Engine(), c.sched.Scheduler())
	return c.server.Start(ctx)
}

func (c *ServerComponent) Close(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}
