package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tieubaoca/course-assistant/logger"
	"github.com/tieubaoca/course-assistant/types"
	"go.uber.org/zap"
)

var ErrCorpusNotFound = errors.New("corpus directory not found")

// Extractor pulls text out of one file. Paged formats return one PageText per
// page or slide, numbered from 1; other formats return a single PageText.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]types.PageText, error)
}

// DefaultExtractors wires an extractor for every supported file type.
func DefaultExtractors(ocrFallback bool) map[types.FileType]Extractor {
	return map[types.FileType]Extractor{
		types.FileTypePDF:    NewPDFService(ocrFallback),
		types.FileTypeSlides: SlidesExtractor{},
		types.FileTypeWord:   WordExtractor{},
		types.FileTypeText:   TextExtractor{},
	}
}

// Loader turns the corpus directory into raw document records. It only reads
// files and never touches the vector index.
type Loader struct {
	root       string
	extractors map[types.FileType]Extractor
}

func NewLoader(root string, extractors map[types.FileType]Extractor) *Loader {
	return &Loader{root: root, extractors: extractors}
}

func (l *Loader) Root() string { return l.root }

// ListFiles walks the corpus in lexical order and returns every file with a
// supported extension.
func (l *Loader) ListFiles(ctx context.Context) ([]string, error) {
	info, err := os.Stat(l.root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrCorpusNotFound, l.root)
	}

	var files []string
	err = filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		ft, ok := types.FileTypeFromExt(filepath.Ext(path))
		if !ok || l.extractors[ft] == nil {
			logger.Debug("unsupported file format, skipped", zap.String("path", path))
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// LoadFile extracts one file. Paged formats give one record per page even when
// a page could not be read; other formats give at most one record.
func (l *Loader) LoadFile(ctx context.Context, path string) []types.RawDocument {
	ft, ok := types.FileTypeFromExt(filepath.Ext(path))
	if !ok || l.extractors[ft] == nil {
		logger.Debug("unsupported file format, skipped", zap.String("path", path))
		return nil
	}

	pages, err := l.extractors[ft].Extract(ctx, path)
	if err != nil {
		logger.Warn("failed to load document", zap.String("path", path), zap.Error(err))
		return nil
	}

	filename := filepath.Base(path)
	if ft.Paged() {
		docs := make([]types.RawDocument, 0, len(pages))
		for i, page := range pages {
			pageNumber := page.PageNumber
			if pageNumber <= 0 {
				pageNumber = i + 1
			}
			content := cleanText(page.Text)
			if content != "" {
				content = pageHeader(ft, pageNumber) + "\n" + content
			}
			docs = append(docs, types.RawDocument{
				Content:    content,
				Filename:   filename,
				Filepath:   path,
				FileType:   ft,
				PageNumber: pageNumber,
			})
		}
		return docs
	}

	var parts []string
	for _, page := range pages {
		if text := cleanText(page.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		logger.Warn("document has no text", zap.String("path", path))
		return nil
	}
	return []types.RawDocument{{
		Content:  strings.Join(parts, "\n"),
		Filename: filename,
		Filepath: path,
		FileType: ft,
	}}
}

// LoadAll lists and loads every supported file under the corpus root.
func (l *Loader) LoadAll(ctx context.Context) ([]types.RawDocument, error) {
	files, err := l.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	var docs []types.RawDocument
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger.Info("loading document", zap.String("path", path))
		docs = append(docs, l.LoadFile(ctx, path)...)
	}
	return docs, nil
}

func pageHeader(ft types.FileType, n int) string {
	if ft == types.FileTypeSlides {
		return fmt.Sprintf("--- Slide %d ---", n)
	}
	return fmt.Sprintf("--- Page %d ---", n)
}
