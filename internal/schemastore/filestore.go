// Package schemastore serves per-route request and response schemas from a
// directory tree:
//
//	<root>/response/<route>/200.txt
//	<root>/request/<route>/parameters.txt
//	<root>/request/<route>/req_schema.txt   (optional body schema)
package schemastore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentoven/actionrag/pkg/models"
)

// ErrNotFound is returned when a route has no schema on disk.
var ErrNotFound = errors.New("schema not found")

// ErrInvalidRoute is returned for routes that would escape the store root.
var ErrInvalidRoute = errors.New("invalid route")

const (
	responseFile   = "200.txt"
	parametersFile = "parameters.txt"
	bodyFile       = "req_schema.txt"
)

// FileStore implements contracts.SchemaStore over a local directory.
type FileStore struct {
	root string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

// Root returns the store's directory.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) ResponseSchema(_ context.Context, route string) (string, error) {
	dir, err := s.dir("response", route)
	if err != nil {
		return "", err
	}
	return readSchema(filepath.Join(dir, responseFile))
}

func (s *FileStore) RequestSchema(_ context.Context, route string) (models.RequestSchema, error) {
	dir, err := s.dir("request", route)
	if err != nil {
		return models.RequestSchema{}, err
	}
	params, err := readSchema(filepath.Join(dir, parametersFile))
	if err != nil {
		return models.RequestSchema{}, err
	}
	body, err := readSchema(filepath.Join(dir, bodyFile))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return models.RequestSchema{}, err
	}
	return models.RequestSchema{Parameters: params, Body: body}, nil
}

func (s *FileStore) dir(kind, route string) (string, error) {
	clean := strings.Trim(filepath.ToSlash(route), "/")
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidRoute, route)
		}
	}
	return filepath.Join(s.root, kind, filepath.FromSlash(clean)), nil
}

func readSchema(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("read schema %s: %w", path, err)
	}
	return string(data), nil
}
