// Package cmd provides shared wiring helpers for the sequor binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sequorhq/sequor/pkg/persistence"
	"github.com/sequorhq/sequor/pkg/persistence/memory"
	"github.com/sequorhq/sequor/pkg/persistence/postgresql"
)

// NewPersistence selects the store backend from the database URL scheme.
// "memory://" keeps everything in-process for local development; postgres
// URLs get the real store with migrations applied.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case databaseURL == "" || strings.HasPrefix(databaseURL, "memory://"):
		logger.InfoContext(ctx, "Using in-memory persistence, data will not survive restarts")

		return memory.NewPersistence()
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create postgresql persistence: %w", err))
		}

		return store
	default:
		panic("unsupported database URL: " + databaseURL)
	}
}
