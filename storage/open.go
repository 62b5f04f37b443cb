package storage

import (
	"github.com/YuminosukeSato/salescv/config"
	"github.com/YuminosukeSato/salescv/pkg/errors"
)

// Open builds the store described by cfg.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Kind {
	case config.StoreFile:
		fs, err := NewFileStore(cfg.Root, cfg.Compress)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StoreS3:
		s3s, err := NewS3Store(cfg.Region, cfg.Bucket, cfg.Prefix)
		if err != nil {
			return nil, err
		}
		return s3s, nil
	default:
		return nil, errors.NewConfigurationErrorf("storage.Open", "unknown store kind %q", cfg.Kind)
	}
}
