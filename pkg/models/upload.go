package models

import "time"

// Upload is the stored record of a file or image a user attached to a form
// field. Digest is the hex SHA-256 of the content and doubles as the storage
// key, so identical uploads share one blob.
type Upload struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Digest    string    `json:"digest"`
	Mime      string    `json:"mime"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
