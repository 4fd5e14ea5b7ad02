package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/persistence"
)

// Directory answers user and label membership questions from the directory tables.
type Directory struct {
	db *sql.DB
}

// NewDirectory creates a new database-backed directory.
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) UserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User

	err := d.db.QueryRowContext(ctx, "SELECT id, name, email FROM users WHERE id = $1", id).
		Scan(&user.ID, &user.Name, &user.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrUserNotFound
		}

		return nil, fmt.Errorf("failed to query user %s: %w", id, err)
	}

	return &user, nil
}

func (d *Directory) UsersByLabel(ctx context.Context, labelID string) ([]*models.User, error) {
	query := `
		SELECT u.id, u.name, u.email
		FROM users u
		JOIN users_labels ul ON ul.user_id = u.id
		WHERE ul.label_id = $1
		ORDER BY u.name
	`

	rows, err := d.db.QueryContext(ctx, query, labelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query label members: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	users := make([]*models.User, 0)

	for rows.Next() {
		var user models.User

		if err := rows.Scan(&user.ID, &user.Name, &user.Email); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		users = append(users, &user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating label members: %w", err)
	}

	return users, nil
}

func (d *Directory) UserHasLabel(ctx context.Context, userID, labelID string) (bool, error) {
	var hasLabel bool

	err := d.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM users_labels WHERE user_id = $1 AND label_id = $2)",
		userID, labelID,
	).Scan(&hasLabel)
	if err != nil {
		return false, fmt.Errorf("failed to query label membership: %w", err)
	}

	return hasLabel, nil
}

// SeedUser upserts a directory user with their label memberships. Used by
// integration tests and import tooling.
func (d *Directory) SeedUser(ctx context.Context, user models.User, labels []string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email
	`, user.ID, user.Name, user.Email)
	if err != nil {
		return fmt.Errorf("failed to seed user %s: %w", user.ID, err)
	}

	for _, labelID := range labels {
		_, err = d.db.ExecContext(ctx, `
			INSERT INTO labels (id, name)
			VALUES ($1, $1)
			ON CONFLICT (id) DO NOTHING
		`, labelID)
		if err != nil {
			return fmt.Errorf("failed to seed label %s: %w", labelID, err)
		}

		_, err = d.db.ExecContext(ctx, `
			INSERT INTO users_labels (user_id, label_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, user.ID, labelID)
		if err != nil {
			return fmt.Errorf("failed to seed membership %s/%s: %w", user.ID, labelID, err)
		}
	}

	return nil
}
