// Package persistence provides the data storage abstraction layer for templates and tickets.
package persistence

import (
	"context"
	"time"

	"github.com/confops/ticketd/pkg/models"
)

// TemplateRepository stores workflow templates as whole aggregates, steps included.
type TemplateRepository interface {
	List(ctx context.Context, projectID string) ([]*models.Template, error)
	GetByID(ctx context.Context, id string) (*models.Template, error)
	Save(ctx context.Context, template *models.Template) error
	Delete(ctx context.Context, id string) error
}

// TicketRepository stores tickets as whole aggregates, runtime steps included.
//
// Save must compare the aggregate's UpdatedAt with the stored row and fail with
// ErrVersionConflict when another writer got there first.
type TicketRepository interface {
	GetByID(ctx context.Context, id string) (*models.Ticket, error)
	ListByTemplate(ctx context.Context, templateID string) ([]*models.Ticket, error)
	// ListForUser returns every ticket the user has been assigned a step on.
	ListForUser(ctx context.Context, userID string) ([]*models.Ticket, error)
	// ListOpenByTemplates returns unfinished tickets belonging to any of the
	// given templates. Used to surface label-operated work nobody claimed yet.
	ListOpenByTemplates(ctx context.Context, templateIDs []string) ([]*models.Ticket, error)
	Save(ctx context.Context, ticket *models.Ticket) error
}

// AnswerLookup resolves dynamic field defaults from previously submitted answers.
type AnswerLookup interface {
	// LatestFieldValue returns the newest value the user submitted for the
	// field key within the given template, optionally pinned to one template
	// step. A nil result means the user never answered the field.
	LatestFieldValue(ctx context.Context, userID, templateID string, templateStepID *string, fieldKey string) (*models.FieldValue, error)
}

// UploadRepository stores upload metadata. Blob content lives in pkg/storage.
type UploadRepository interface {
	GetByID(ctx context.Context, id string) (*models.Upload, error)
	Save(ctx context.Context, upload *models.Upload) error
}

// Directory answers membership questions about users and labels.
type Directory interface {
	UserByID(ctx context.Context, id string) (*models.User, error)
	UsersByLabel(ctx context.Context, labelID string) ([]*models.User, error)
	UserHasLabel(ctx context.Context, userID, labelID string) (bool, error)
}

// ExpiredFormStep identifies a ticket step whose form deadline has passed.
type ExpiredFormStep struct {
	TicketID  string
	StepID    string
	ExpiresAt time.Time
}

// ExpiryScanner lists open form steps whose deadline is behind the given time.
type ExpiryScanner interface {
	ListExpiredFormSteps(ctx context.Context, now time.Time) ([]ExpiredFormStep, error)
}

type Persistence interface {
	Templates() TemplateRepository
	Tickets() TicketRepository
	Answers() AnswerLookup
	Uploads() UploadRepository
	Directory() Directory
	Expiry() ExpiryScanner

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
