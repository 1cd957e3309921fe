// Package catalogsource loads the reference expiration catalog from seed
// files or wraps the database-backed source with retries.
package catalogsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
	"github.com/kirillkom/receipt-reminders/internal/core/ports"
)

type yamlDocument struct {
	Items []domain.ReferenceItem `yaml:"items"`
}

// YAMLFile reads a document of the form:
//
//	items:
//	  - name: Milk
//	    category: Dairy
//	    fridge_days: 7
type YAMLFile struct {
	path string
}

func NewYAMLFile(path string) *YAMLFile {
	return &YAMLFile{path: path}
}

func (s *YAMLFile) FetchAll(_ context.Context) ([]domain.ReferenceItem, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return decodeYAML(raw)
}

func decodeYAML(raw []byte) ([]domain.ReferenceItem, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode yaml catalog", err)
	}
	return doc.Items, nil
}

// FromFile picks a file source by extension.
func FromFile(path, sheet string) (ports.CatalogSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYAMLFile(path), nil
	case ".xlsx":
		return NewXLSXFile(path, sheet), nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "catalog file source", fmt.Errorf("unsupported catalog file %q", path))
	}
}
