// Package postgresql provides PostgreSQL persistence implementation for templates and tickets.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/confops/ticketd/pkg/persistence"
	"github.com/confops/ticketd/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	templateRepo *TemplateRepository
	ticketRepo   *TicketRepository
	uploadRepo   *UploadRepository
	directory    *Directory
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:           database,
		logger:       logger,
		templateRepo: NewTemplateRepository(database, logger),
		ticketRepo:   NewTicketRepository(database, logger),
		uploadRepo:   NewUploadRepository(database),
		directory:    NewDirectory(database),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Templates() persistence.TemplateRepository {
	return p.templateRepo
}

func (p *Persistence) Tickets() persistence.TicketRepository {
	return p.ticketRepo
}

func (p *Persistence) Answers() persistence.AnswerLookup {
	return &answerLookup{db: p.db}
}

func (p *Persistence) Uploads() persistence.UploadRepository {
	return p.uploadRepo
}

func (p *Persistence) Directory() persistence.Directory {
	return p.directory
}

func (p *Persistence) Expiry() persistence.ExpiryScanner {
	return p.ticketRepo
}
