// Package storage stores uploaded blobs on disk, addressed by content digest.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Store writes blobs under root/blobs/<sha256-hex>. Content addressing makes
// writes idempotent: re-uploading identical bytes reuses the existing blob.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Store{root: cleanRoot}
}

// Digest returns the hex SHA-256 of the content.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}

// Put writes the blob and returns its digest. Writing an already stored blob
// is a no-op.
func (s *Store) Put(data []byte) (string, error) {
	digest := Digest(data)

	dir := path.Join(s.root, "blobs")

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return "", fmt.Errorf("failed to create blobs directory: %w", err)
	}

	target := path.Join(dir, digest)
	if _, err := os.Stat(target); err == nil {
		return digest, nil
	}

	// Write to a temp file first so a partial write never shows up under the
	// final digest name.
	tmp, err := os.CreateTemp(dir, "incoming-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp blob: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("failed to write blob %s: %w", digest, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("failed to close blob %s: %w", digest, err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("failed to store blob %s: %w", digest, err)
	}

	return digest, nil
}

// Get reads a stored blob by digest.
func (s *Store) Get(digest string) ([]byte, error) {
	target := filepath.Clean(path.Join(s.root, "blobs", digest))

	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob %s not found: %w", digest, os.ErrNotExist)
		}

		return nil, fmt.Errorf("failed to read blob %s: %w", digest, err)
	}

	return data, nil
}
