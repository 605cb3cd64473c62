package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sirosfoundation/go-ebics/internal/config"
	"github.com/sirosfoundation/go-ebics/internal/storage"
	"github.com/sirosfoundation/go-ebics/internal/storage/badgerstore"
	"github.com/sirosfoundation/go-ebics/internal/storage/mongodb"
)

// OpenStorage creates the Store described by the storage section.
func OpenStorage(ctx context.Context, cfg *config.StorageConfig, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Type {
	case "badger", "":
		return badgerstore.NewStore(&badgerstore.Config{
			Path:     cfg.Badger.Path,
			InMemory: cfg.Badger.InMemory,
			Logger:   logger,
		})
	case "mongodb":
		return mongodb.NewStore(ctx, &mongodb.Config{
			URI:            cfg.MongoDB.URI,
			Database:       cfg.MongoDB.Database,
			GridFSBucket:   cfg.MongoDB.GridFS.BucketName,
			ChunkSizeBytes: int32(cfg.MongoDB.GridFS.ChunkSizeBytes),
		})
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
