// Package loader reads documents from disk and splits them into nodes.
package loader

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"ragkit/internal/schema"
	ragerrors "ragkit/pkg/errors"
	"ragkit/pkg/logger"
)

// ReaderOptions configure a Reader.
type ReaderOptions struct {
	Extensions []string
	Recursive  bool
}

// Reader loads every supported file of a directory as a Document.
type Reader struct {
	extensions map[string]bool
	recursive  bool
}

func NewReader(opts ReaderOptions) *Reader {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = []string{".txt", ".md", ".pdf"}
	}
	r := &Reader{extensions: make(map[string]bool, len(exts)), recursive: opts.Recursive}
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.extensions[ext] = true
	}
	return r
}

// DocumentID derives a stable document ID from an absolute file path.
func DocumentID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path)).String()
}

// LoadData walks dir and returns documents sorted by path. Unreadable files
// are skipped with a warning; a directory without supported files is a
// validation error.
func (r *Reader) LoadData(ctx context.Context, dir string) ([]schema.Document, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, ragerrors.Validation("dir", fmt.Sprintf("%s is not a directory", dir))
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && (!r.recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if r.extensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	docs := make([]schema.Document, 0, len(paths))
	for _, path := range paths {
		doc, err := r.LoadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable file", "path", path, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, ragerrors.Validation("dir", fmt.Sprintf("no supported files found in %s", dir))
	}
	logger.Info("loaded documents", "dir", root, "count", len(docs))
	return docs, nil
}

// LoadFile reads a single file into a Document.
func (r *Reader) LoadFile(path string) (schema.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return schema.Document{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return schema.Document{}, err
	}

	ext := strings.ToLower(filepath.Ext(abs))
	var text string
	switch ext {
	case ".pdf":
		text, err = readPDF(abs)
	default:
		text, err = readText(abs)
	}
	if err != nil {
		return schema.Document{}, err
	}

	return schema.Document{
		ID:   DocumentID(abs),
		Text: text,
		Metadata: map[string]any{
			schema.MetaFileName: filepath.Base(abs),
			schema.MetaFilePath: abs,
			schema.MetaFileType: mimeType(ext),
			schema.MetaFileSize: info.Size(),
		},
	}, nil
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8", path)
	}
	return string(data), nil
}

func readPDF(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var b strings.Builder
	if _, err := io.Copy(&b, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return b.String(), nil
}

func mimeType(ext string) string {
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".md":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
