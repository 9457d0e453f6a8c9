package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
)

// documentNamespace derives stable document ids from corpus-relative paths.
var documentNamespace = uuid.MustParse("0b7c6a52-93f1-4d5e-8f0e-3c2a1d4b5e6f")

type extractFunc func(path string) (string, error)

var extractors = map[string]extractFunc{
	".txt":  extractPlainText,
	".md":   extractPlainText,
	".pdf":  extractPDF,
	".xlsx": extractXLSX,
}

// Source reads the fixed corpus from a directory tree.
type Source struct {
	root string
}

func NewSource(root string) (*Source, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat corpus dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus path %s is not a directory", root)
	}
	return &Source{root: root}, nil
}

// List returns corpus-relative paths of every supported file, sorted.
func (s *Source) List(ctx context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := extractors[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus dir: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Source) Load(_ context.Context, name string) (domain.CorpusDocument, error) {
	path := filepath.Join(s.root, filepath.FromSlash(name))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return domain.CorpusDocument{}, domain.WrapError(domain.ErrInvalidInput, "load corpus document", fmt.Errorf("%s is outside the corpus", name))
	}

	extract, ok := extractors[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return domain.CorpusDocument{}, domain.WrapError(domain.ErrInvalidInput, "load corpus document", fmt.Errorf("unsupported format: %s", name))
	}
	text, err := extract(path)
	if err != nil {
		return domain.CorpusDocument{}, fmt.Errorf("extract %s: %w", name, err)
	}
	return domain.CorpusDocument{
		ID:     uuid.NewSHA1(documentNamespace, []byte(name)).String(),
		Source: name,
		Text:   strings.TrimSpace(text),
	}, nil
}
