// Package file provides file-based persistence for templates and tickets.
// It backs unit tests and local development, one JSON document per aggregate.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/confops/ticketd/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root         string
	templateRepo *TemplateRepository
	ticketRepo   *TicketRepository
	uploadRepo   *UploadRepository
	directory    *Directory
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	templateRepo := NewTemplateRepository(cleanRoot)
	ticketRepo := NewTicketRepository(cleanRoot, templateRepo)

	return &Persistence{
		root:         cleanRoot,
		templateRepo: templateRepo,
		ticketRepo:   ticketRepo,
		uploadRepo:   NewUploadRepository(cleanRoot),
		directory:    NewDirectory(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) Templates() persistence.TemplateRepository {
	return fp.templateRepo
}

func (fp *Persistence) Tickets() persistence.TicketRepository {
	return fp.ticketRepo
}

// Answers resolves dynamic defaults by scanning stored tickets. Recency is
// approximated by ticket update time, newest first.
func (fp *Persistence) Answers() persistence.AnswerLookup {
	return &answerLookup{tickets: fp.ticketRepo}
}

func (fp *Persistence) Uploads() persistence.UploadRepository {
	return fp.uploadRepo
}

func (fp *Persistence) Directory() persistence.Directory {
	return fp.directory
}

func (fp *Persistence) Expiry() persistence.ExpiryScanner {
	return fp.ticketRepo
}
