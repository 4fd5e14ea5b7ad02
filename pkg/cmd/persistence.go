package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/confops/ticketd/pkg/persistence"
	"github.com/confops/ticketd/pkg/persistence/file"
	"github.com/confops/ticketd/pkg/persistence/postgresql"
)

// NewPersistence picks the persistence backend from the database URL scheme.
// postgres:// URLs get PostgreSQL, anything else is treated as a file root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return p
	default:
		return file.NewPersistence(databaseURL)
	}
}
