package components

import (
	"context"
	"fmt"

	"moodatlas/internal/config"
	"moodatlas/internal/storage"
)

type StorageComponent struct {
	config config.StorageConfig
	store  storage.StorageInterface
}

func NewStorageComponent(cfg config.StorageConfig) *StorageComponent {
	return &StorageComponent{config: cfg}
}

func (c *StorageComponent) Name() string {
	return StorageComponentName
}

func (c *StorageComponent) Dependencies() []string {
	return []string{}
}

func (c *StorageComponent) Validate() error {
	if c.config.Path == "" {
		return fmt.Errorf("storage: database path is required")
	}
	return nil
}

func (c *StorageComponent) Initialize(ctx context.Context) error {
	store, err := storage.New(ctx, c.config)
	if err != nil {
		return fmt.Errorf("storage: failed to initialize: %w", err)
	}
	c.store = store
	return nil
}

func (c *StorageComponent) Close(ctx context.Context) error {
	if c.store != nil {
		return c.store.Close(ctx)
	}
	return nil
}

func (c *StorageComponent) Store() storage.StorageInterface {
	return c.store
}
