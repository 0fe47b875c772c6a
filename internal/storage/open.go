package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/your-org/facegate/internal/config"
)

// Open connects the store selected by cfg.Driver. signatureDim sizes the
// pgvector column on postgres and is ignored elsewhere.
func Open(ctx context.Context, cfg config.DatabaseConfig, signatureDim int) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgresStore(ctx, cfg, signatureDim)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.Path)
	case "memory":
		slog.Warn("using in-memory store, data is lost on restart")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
