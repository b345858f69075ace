package rag

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentoven/actionrag/pkg/models"
)

// docExtensions are the file types read by LoadDir.
var docExtensions = map[string]bool{".txt": true, ".md": true}

// LoadDir reads every documentation file under root. Paths are returned as
// "<base of root>/<relative path>" with forward slashes, sorted.
func LoadDir(root string) ([]models.Document, error) {
	base := filepath.Base(filepath.Clean(root))
	var docs []models.Document

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !docExtensions[strings.ToLower(filepath.Ext(p))] {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		docs = append(docs, models.Document{
			Path:    path.Join(base, filepath.ToSlash(rel)),
			Content: string(data),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load docs from %s: %w", root, err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}
