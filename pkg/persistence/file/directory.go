package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/persistence"
)

// Directory reads users and label memberships from directory.json under the
// root. The file is authored by hand in development and seeded by tests.
type Directory struct {
	root string
}

// NewDirectory creates a new file-backed directory.
func NewDirectory(root string) *Directory {
	return &Directory{root: root}
}

type directoryEntry struct {
	User   models.User `json:"user"`
	Labels []string    `json:"labels,omitempty"`
}

type directoryFile struct {
	Users  []directoryEntry `json:"users"`
	Labels []models.Label   `json:"labels,omitempty"`
}

func (d *Directory) load() (*directoryFile, error) {
	filePath := filepath.Clean(path.Join(d.root, "directory.json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &directoryFile{}, nil
		}

		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var file directoryFile

	err = json.Unmarshal(body, &file)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal directory: %w", err)
	}

	return &file, nil
}

// Seed writes the directory file. Meant for tests and development setup.
func (d *Directory) Seed(users []models.User, memberships map[string][]string) error {
	file := directoryFile{Users: make([]directoryEntry, 0, len(users))}

	for _, user := range users {
		file.Users = append(file.Users, directoryEntry{
			User:   user,
			Labels: memberships[user.ID],
		})
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal directory: %w", err)
	}

	if err := os.MkdirAll(d.root, 0750); err != nil {
		return fmt.Errorf("failed to create directory root: %w", err)
	}

	return os.WriteFile(path.Join(d.root, "directory.json"), data, 0600)
}

func (d *Directory) UserByID(_ context.Context, id string) (*models.User, error) {
	file, err := d.load()
	if err != nil {
		return nil, err
	}

	for _, entry := range file.Users {
		if entry.User.ID == id {
			user := entry.User

			return &user, nil
		}
	}

	return nil, persistence.ErrUserNotFound
}

func (d *Directory) UsersByLabel(_ context.Context, labelID string) ([]*models.User, error) {
	file, err := d.load()
	if err != nil {
		return nil, err
	}

	users := make([]*models.User, 0)

	for _, entry := range file.Users {
		for _, label := range entry.Labels {
			if label == labelID {
				user := entry.User
				users = append(users, &user)

				break
			}
		}
	}

	return users, nil
}

func (d *Directory) UserHasLabel(_ context.Context, userID, labelID string) (bool, error) {
	file, err := d.load()
	if err != nil {
		return false, err
	}

	for _, entry := range file.Users {
		if entry.User.ID != userID {
			continue
		}

		for _, label := range entry.Labels {
			if label == labelID {
				return true, nil
			}
		}
	}

	return false, nil
}
